// Package aave is the lending protocol client: it resolves the deployed
// contracts for the active network, issues read calls for account and price
// data, and drives wallet-signed deposit/withdraw/borrow/repay transactions
// through a single build-sign-broadcast-confirm pipeline.
package aave

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"aaveclient/internal/config"
	clierr "aaveclient/internal/errors"
	"aaveclient/internal/httpx"
	"aaveclient/internal/registry"
	"aaveclient/internal/signer"
	"aaveclient/internal/token"
)

// Client talks to one protocol deployment on behalf of one wallet. It is
// synchronous and assumes a single writer per wallet: issuing concurrent
// mutating operations from several goroutines risks nonce collisions.
type Client struct {
	settings config.Settings
	backend  Backend
	signer   signer.Signer
	wallet   common.Address
	tokens   *token.Registry
	http     *httpx.Client
	log      *zap.Logger
}

// Deps are injection points for tests and embedding applications. Unset
// fields fall back to production defaults.
type Deps struct {
	Backend Backend
	Signer  signer.Signer
	HTTP    *httpx.Client
	Logger  *zap.Logger
}

// New dials the configured RPC endpoint and builds a fully wired client.
func New(ctx context.Context, settings config.Settings, log *zap.Logger) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, settings.RPCURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable,
			fmt.Sprintf("could not connect to the %s network at %s", settings.Network.Name, settings.RPCURL), err)
	}
	var txSigner signer.Signer
	switch {
	case strings.TrimSpace(settings.PrivateKey) != "":
		local, err := signer.NewLocalSigner(settings.PrivateKey)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeConfig, "load wallet private key", err)
		}
		txSigner = local
	case strings.TrimSpace(settings.KeystorePath) != "":
		local, err := signer.NewLocalSignerFromKeystore(settings.KeystorePath, settings.KeystorePassword)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeConfig, "load wallet keystore", err)
		}
		txSigner = local
	}
	return NewWithDeps(settings, Deps{Backend: backend, Signer: txSigner, Logger: log})
}

// NewWithDeps builds a client around explicit dependencies.
func NewWithDeps(settings config.Settings, deps Deps) (*Client, error) {
	if deps.Backend == nil {
		return nil, clierr.New(clierr.CodeConfig, "missing RPC backend")
	}
	if !common.IsHexAddress(settings.WalletAddress) {
		return nil, clierr.New(clierr.CodeConfig,
			fmt.Sprintf("invalid wallet address %q", settings.WalletAddress))
	}
	if settings.GasStrategy.ConfirmationTimeout() <= 0 {
		return nil, clierr.New(clierr.CodeConfig,
			fmt.Sprintf("invalid gas strategy %q: available strategies are fast, medium, slow, or glacial", settings.GasStrategy))
	}
	httpClient := deps.HTTP
	if httpClient == nil {
		httpClient = httpx.New(settings.HTTPTimeout, settings.HTTPRetries)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		settings: settings,
		backend:  deps.Backend,
		signer:   deps.Signer,
		wallet:   common.HexToAddress(settings.WalletAddress),
		tokens:   token.NewRegistry(settings.Network),
		http:     httpClient,
		log:      log,
	}, nil
}

// Network returns the active deployment profile.
func (c *Client) Network() registry.Network {
	return c.settings.Network
}

// WalletAddress returns the configured wallet.
func (c *Client) WalletAddress() common.Address {
	return c.wallet
}

// Tokens returns the reserve token registry for the active network.
func (c *Client) Tokens() *token.Registry {
	return c.tokens
}

// PopulateTokens fills the registry, preferring the published token list and
// falling back to on-chain discovery for networks without one.
func (c *Client) PopulateTokens(ctx context.Context) error {
	if url := c.settings.Network.TokenListURL; url != "" {
		return c.tokens.PopulateFromTokenList(ctx, c.http, url)
	}
	return c.tokens.PopulateFromDataProvider(ctx, c.backend)
}

// lendingPool resolves the live lending pool contract through the addresses
// provider registry.
func (c *Client) lendingPool(ctx context.Context) (common.Address, error) {
	provider := common.HexToAddress(c.settings.Network.LendingPoolAddressesProvider)
	out, err := c.callRead(ctx, provider, addressesProviderABI, "getLendingPool")
	if err != nil {
		return common.Address{}, err
	}
	pool := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if pool == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "lending pool address is zero")
	}
	return pool, nil
}

// priceOracle resolves the protocol price oracle through the addresses
// provider registry.
func (c *Client) priceOracle(ctx context.Context) (common.Address, error) {
	provider := common.HexToAddress(c.settings.Network.LendingPoolAddressesProvider)
	out, err := c.callRead(ctx, provider, addressesProviderABI, "getPriceOracle")
	if err != nil {
		return common.Address{}, err
	}
	oracle := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if oracle == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "price oracle address is zero")
	}
	return oracle, nil
}

func (c *Client) callRead(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.wallet, To: &target, Data: data}, nil)
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
	erc20ABI             = mustABI(registry.ERC20ABI)
	wethABI              = mustABI(registry.WETHABI)
	addressesProviderABI = mustABI(registry.LendingPoolAddressesProviderABI)
	lendingPoolABI       = mustABI(registry.LendingPoolABI)
	priceOracleABI       = mustABI(registry.PriceOracleABI)
	dataProviderABI      = mustABI(registry.ProtocolDataProviderABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
