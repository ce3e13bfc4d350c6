package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/httpx"
	"aaveclient/internal/registry"
)

// populateConcurrency bounds the parallel per-reserve metadata fetches.
const populateConcurrency = 8

// ContractCaller is the single read primitive the registry needs from an RPC
// client. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Registry resolves ticker symbols to full reserve metadata for one network.
// Tokens are only ever appended, never removed.
type Registry struct {
	network registry.Network

	mu        sync.Mutex
	tokens    []ReserveToken
	populated bool
}

func NewRegistry(network registry.Network) *Registry {
	return &Registry{network: network}
}

// Resolve matches symbol case-insensitively against either the underlying or
// the interest-bearing ticker of each known reserve.
func (r *Registry) Resolve(symbol string) (ReserveToken, error) {
	want := strings.TrimSpace(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if strings.EqualFold(t.Symbol, want) || strings.EqualFold(t.ATokenSymbol, want) {
			return t, nil
		}
	}
	return ReserveToken{}, clierr.New(clierr.CodeNotFound,
		fmt.Sprintf("could not match %q with a reserve token on the %s network", symbol, r.network.Name))
}

// List returns a snapshot of the known reserves; empty before population.
func (r *Registry) List() []ReserveToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReserveToken, len(r.tokens))
	copy(out, r.tokens)
	return out
}

type tokenListDocument struct {
	Proto *[]ReserveToken `json:"proto"`
}

// PopulateFromTokenList loads the published token list for the network. The
// expected document carries the reserve records under a "proto" array.
func (r *Registry) PopulateFromTokenList(ctx context.Context, httpClient *httpx.Client, url string) error {
	r.mu.Lock()
	if r.populated {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	var doc tokenListDocument
	if err := httpClient.GetJSON(ctx, url, &doc); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable,
			fmt.Sprintf("could not fetch token list for the %s network from %s", r.network.Name, url), err)
	}
	if doc.Proto == nil {
		return clierr.New(clierr.CodeUnavailable,
			fmt.Sprintf("token list at %s is missing the proto field", url))
	}

	tokens := make([]ReserveToken, 0, len(*doc.Proto))
	for _, t := range *doc.Proto {
		t.Symbol = strings.ToUpper(t.Symbol)
		tokens = append(tokens, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.populated {
		return nil
	}
	r.tokens = append(r.tokens, tokens...)
	r.populated = true
	return nil
}

// PopulateFromDataProvider discovers every reserve directly from the protocol
// data provider contract: one call for the reserve list, then per reserve the
// underlying decimals, the three derivative-token addresses, and the
// interest-bearing token's symbol. The per-reserve fetches are independent and
// run concurrently; only set membership matters, not order.
func (r *Registry) PopulateFromDataProvider(ctx context.Context, caller ContractCaller) error {
	r.mu.Lock()
	if r.populated {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	dataProvider := common.HexToAddress(r.network.ProtocolDataProvider)
	out, err := callRead(ctx, caller, dataProvider, dataProviderABI, "getAllReservesTokens")
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "fetch protocol reserve list", err)
	}
	if len(out) == 0 {
		return clierr.New(clierr.CodeDecode, "empty reserve list reply from data provider")
	}
	reserves := *abi.ConvertType(out[0], new([]reserveEntry)).(*[]reserveEntry)

	tokens := make([]ReserveToken, len(reserves))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(populateConcurrency)
	for i, reserve := range reserves {
		group.Go(func() error {
			t, err := r.fetchReserveToken(groupCtx, caller, dataProvider, reserve)
			if err != nil {
				return err
			}
			tokens[i] = t
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.populated {
		return nil
	}
	r.tokens = append(r.tokens, tokens...)
	r.populated = true
	return nil
}

type reserveEntry struct {
	Symbol       string
	TokenAddress common.Address
}

func (r *Registry) fetchReserveToken(ctx context.Context, caller ContractCaller, dataProvider common.Address, reserve reserveEntry) (ReserveToken, error) {
	decimalsOut, err := callRead(ctx, caller, reserve.TokenAddress, erc20ABI, "decimals")
	if err != nil {
		return ReserveToken{}, clierr.Wrap(clierr.CodeUnavailable,
			fmt.Sprintf("fetch decimals for reserve %s", reserve.Symbol), err)
	}
	decimals, ok := decimalsOut[0].(uint8)
	if !ok {
		return ReserveToken{}, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected decimals reply for reserve %s", reserve.Symbol))
	}

	addrsOut, err := callRead(ctx, caller, dataProvider, dataProviderABI, "getReserveTokensAddresses", reserve.TokenAddress)
	if err != nil {
		return ReserveToken{}, clierr.Wrap(clierr.CodeUnavailable,
			fmt.Sprintf("fetch derivative token addresses for reserve %s", reserve.Symbol), err)
	}
	if len(addrsOut) != 3 {
		return ReserveToken{}, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("expected 3 derivative token addresses for reserve %s, got %d", reserve.Symbol, len(addrsOut)))
	}
	aToken := *abi.ConvertType(addrsOut[0], new(common.Address)).(*common.Address)
	stableDebt := *abi.ConvertType(addrsOut[1], new(common.Address)).(*common.Address)
	variableDebt := *abi.ConvertType(addrsOut[2], new(common.Address)).(*common.Address)

	symbolOut, err := callRead(ctx, caller, aToken, erc20ABI, "symbol")
	if err != nil {
		return ReserveToken{}, clierr.Wrap(clierr.CodeUnavailable,
			fmt.Sprintf("fetch interest-bearing token symbol for reserve %s", reserve.Symbol), err)
	}
	aTokenSymbol, ok := symbolOut[0].(string)
	if !ok {
		return ReserveToken{}, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected symbol reply for reserve %s", reserve.Symbol))
	}

	return ReserveToken{
		Symbol:                   strings.ToUpper(reserve.Symbol),
		Address:                  reserve.TokenAddress.Hex(),
		Decimals:                 int(decimals),
		ATokenAddress:            aToken.Hex(),
		ATokenSymbol:             aTokenSymbol,
		StableDebtTokenAddress:   stableDebt.Hex(),
		VariableDebtTokenAddress: variableDebt.Hex(),
	}, nil
}

func callRead(ctx context.Context, caller ContractCaller, target common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s", method), err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeDecode, fmt.Sprintf("decode %s reply", method), err)
	}
	return out, nil
}

var (
	erc20ABI        = mustABI(registry.ERC20ABI)
	dataProviderABI = mustABI(registry.ProtocolDataProviderABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
