package aave

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"aaveclient/internal/config"
	"aaveclient/internal/httpx"
	"aaveclient/internal/registry"
	"aaveclient/internal/signer"
	"aaveclient/internal/token"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testWallet     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	testPoolAddress   = "0x00000000000000000000000000000000000000A1"
	testOracleAddress = "0x00000000000000000000000000000000000000B2"
	testDAIAddress    = "0x00000000000000000000000000000000000000C3"
)

// fakeBackend is an in-memory RPC backend. Contract reads are answered from
// a per-selector reply queue; sent transactions are recorded for inspection.
type fakeBackend struct {
	replies map[string][][]byte

	nonce    uint64
	nonceErr error

	estimateGas uint64
	tipCap      *big.Int
	baseFee     *big.Int

	sent    []*types.Transaction
	sendErr error

	receipt    *types.Receipt
	receiptErr error

	callCount int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		replies:     map[string][][]byte{},
		nonce:       7,
		estimateGas: 100_000,
		tipCap:      big.NewInt(1_000_000_000),
		baseFee:     big.NewInt(10_000_000_000),
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			GasUsed:           21_000,
			EffectiveGasPrice: big.NewInt(20_000_000_000),
		},
	}
}

// stub enqueues one reply for a method's selector. Repeated stubs for the
// same method are consumed in order; the last one sticks.
func (b *fakeBackend) stub(t *testing.T, parsed abi.ABI, method string, outputs ...any) {
	t.Helper()
	data, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	key := hex.EncodeToString(parsed.Methods[method].ID)
	b.replies[key] = append(b.replies[key], data)
}

// stubRaw enqueues a raw reply, for malformed-response tests.
func (b *fakeBackend) stubRaw(parsed abi.ABI, method string, data []byte) {
	key := hex.EncodeToString(parsed.Methods[method].ID)
	b.replies[key] = append(b.replies[key], data)
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.callCount++
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	key := hex.EncodeToString(msg.Data[:4])
	queue := b.replies[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no stubbed reply for selector %s", key)
	}
	reply := queue[0]
	if len(queue) > 1 {
		b.replies[key] = queue[1:]
	}
	return reply, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, b.nonceErr
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return b.estimateGas, nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.tipCap), nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: new(big.Int).Set(b.baseFee)}, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	return b.receipt, nil
}

func testSettings() config.Settings {
	return config.Settings{
		Network:       registry.Goerli,
		RPCURL:        "http://localhost:8545",
		WalletAddress: testWallet,
		GasStrategy:   config.GasFast,
		HTTPTimeout:   time.Second,
	}
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	key, err := signer.NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("build test signer: %v", err)
	}
	client, err := NewWithDeps(testSettings(), Deps{Backend: backend, Signer: key})
	if err != nil {
		t.Fatalf("build test client: %v", err)
	}
	return client
}

func testDAI() token.ReserveToken {
	return token.ReserveToken{
		Symbol:   "DAI",
		Address:  testDAIAddress,
		Decimals: 18,
	}
}

// stubAddressesProvider answers both registry lookups with the test
// deployment addresses.
func stubAddressesProvider(t *testing.T, backend *fakeBackend) {
	t.Helper()
	backend.stub(t, addressesProviderABI, "getLendingPool", common.HexToAddress(testPoolAddress))
	backend.stub(t, addressesProviderABI, "getPriceOracle", common.HexToAddress(testOracleAddress))
}

// seedTokens populates the client registry from a local token list server.
func seedTokens(t *testing.T, client *Client, tokens ...token.ReserveToken) {
	t.Helper()
	body := `{"proto":[`
	for i, tok := range tokens {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"symbol":%q,"address":%q,"decimals":%d,"aTokenAddress":%q,"aTokenSymbol":%q}`,
			tok.Symbol, tok.Address, tok.Decimals, tok.ATokenAddress, tok.ATokenSymbol)
	}
	body += `]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	httpClient := httpx.New(time.Second, 0)
	if err := client.Tokens().PopulateFromTokenList(context.Background(), httpClient, server.URL); err != nil {
		t.Fatalf("seed token registry: %v", err)
	}
}

func eth(v string) *big.Int {
	d, ok := new(big.Int).SetString(v, 10)
	if !ok {
		panic("bad test amount " + v)
	}
	return d
}
