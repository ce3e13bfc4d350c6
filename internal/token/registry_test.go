package token

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/httpx"
	"aaveclient/internal/registry"
)

func seededRegistry() *Registry {
	r := NewRegistry(registry.Mainnet)
	r.tokens = []ReserveToken{
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, ATokenSymbol: "aDAI"},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, ATokenSymbol: "aUSDC"},
	}
	r.populated = true
	return r
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := seededRegistry()

	for _, symbol := range []string{"DAI", "dai", "Dai", "aDAI", "adai"} {
		got, err := r.Resolve(symbol)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", symbol, err)
		}
		if got.Symbol != "DAI" {
			t.Fatalf("Resolve(%q) = %s, want DAI", symbol, got.Symbol)
		}
	}
}

func TestResolveUnknownSymbol(t *testing.T) {
	r := seededRegistry()
	_, err := r.Resolve("SHIB")
	if !clierr.Is(err, clierr.CodeNotFound) {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}

func TestPopulateFromTokenList(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, `{"proto":[
			{"symbol":"dai","address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","decimals":18,"aTokenAddress":"0x028171bCA77440897B824Ca71D1c56caC55b68A3","aTokenSymbol":"aDAI"}
		]}`)
	}))
	defer srv.Close()

	r := NewRegistry(registry.Mainnet)
	client := httpx.New(2*time.Second, 0)
	if err := r.PopulateFromTokenList(context.Background(), client, srv.URL); err != nil {
		t.Fatalf("PopulateFromTokenList failed: %v", err)
	}

	got, err := r.Resolve("dai")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Symbol != "DAI" {
		t.Fatalf("symbol = %q, want the list's lowercase ticker normalized to DAI", got.Symbol)
	}
	if got.Decimals != 18 || got.ATokenSymbol != "aDAI" {
		t.Fatalf("unexpected token metadata: %+v", got)
	}

	// Population runs at most once.
	if err := r.PopulateFromTokenList(context.Background(), client, srv.URL); err != nil {
		t.Fatalf("second PopulateFromTokenList failed: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("made %d token list requests, want 1", got)
	}
	if len(r.List()) != 1 {
		t.Fatalf("registry holds %d tokens, want no duplicates", len(r.List()))
	}
}

func TestPopulateFromTokenListMissingProto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tokens":[]}`)
	}))
	defer srv.Close()

	r := NewRegistry(registry.Mainnet)
	err := r.PopulateFromTokenList(context.Background(), httpx.New(2*time.Second, 0), srv.URL)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("err = %v, want an unavailable error for the missing proto field", err)
	}
}

// fakeCaller answers contract reads from a per-selector reply table.
type fakeCaller struct {
	mu      sync.Mutex
	replies map[string][]byte
	calls   int
}

func (f *fakeCaller) stub(t *testing.T, parsed abi.ABI, method string, outputs ...any) {
	t.Helper()
	data, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	if f.replies == nil {
		f.replies = map[string][]byte{}
	}
	f.replies[hex.EncodeToString(parsed.Methods[method].ID)] = data
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	reply, ok := f.replies[hex.EncodeToString(msg.Data[:4])]
	if !ok {
		return nil, fmt.Errorf("no stubbed reply for selector %x", msg.Data[:4])
	}
	return reply, nil
}

func TestPopulateFromDataProvider(t *testing.T) {
	caller := &fakeCaller{}
	caller.stub(t, dataProviderABI, "getAllReservesTokens", []struct {
		Symbol       string
		TokenAddress common.Address
	}{
		{Symbol: "dai", TokenAddress: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")},
	})
	caller.stub(t, erc20ABI, "decimals", uint8(18))
	caller.stub(t, dataProviderABI, "getReserveTokensAddresses",
		common.HexToAddress("0x028171bCA77440897B824Ca71D1c56caC55b68A3"),
		common.HexToAddress("0x778A13D3eeb110A4f7bb6529F99c000119a08E92"),
		common.HexToAddress("0x6C3c78838c761c6Ac7bE9F59fe808ea2A6E4379d"))
	caller.stub(t, erc20ABI, "symbol", "aDAI")

	r := NewRegistry(registry.Goerli)
	if err := r.PopulateFromDataProvider(context.Background(), caller); err != nil {
		t.Fatalf("PopulateFromDataProvider failed: %v", err)
	}

	got, err := r.Resolve("DAI")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Decimals != 18 || got.ATokenSymbol != "aDAI" {
		t.Fatalf("unexpected token metadata: %+v", got)
	}
	if got.ATokenAddress != common.HexToAddress("0x028171bCA77440897B824Ca71D1c56caC55b68A3").Hex() {
		t.Fatalf("aToken address = %s", got.ATokenAddress)
	}

	// A second populate is a no-op.
	before := caller.calls
	if err := r.PopulateFromDataProvider(context.Background(), caller); err != nil {
		t.Fatalf("second PopulateFromDataProvider failed: %v", err)
	}
	if caller.calls != before {
		t.Fatal("second populate made contract reads")
	}
}
