package aave

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	clierr "aaveclient/internal/errors"
)

// stubPosition wires a full read surface: a 2 ETH collateral / 0.5 ETH debt /
// 1 ETH borrowable position, a 1 ETH wrapped-native price, and a 0.5 ETH
// asset price, so 1 ETH of position converts to 2 units of the asset.
func stubPosition(t *testing.T, backend *fakeBackend) {
	t.Helper()
	stubAddressesProvider(t, backend)
	backend.stub(t, lendingPoolABI, "getUserAccountData",
		eth("2000000000000000000"),
		eth("500000000000000000"),
		eth("1000000000000000000"),
		big.NewInt(8250), big.NewInt(8000), eth("1500000000000000000"))
	backend.stub(t, priceOracleABI, "getAssetPrice", eth("1000000000000000000"))
	backend.stub(t, priceOracleABI, "getAssetPrice", eth("500000000000000000"))
}

func TestPercentageOutOfRangeFailsBeforeIO(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	for _, pct := range []string{"1.5", "0", "-0.1"} {
		_, err := client.BorrowPercentage(context.Background(), testDAI(),
			decimal.RequireFromString(pct), RateVariable, nil)
		if !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("pct %s: err = %v, want a usage error", pct, err)
		}
	}
	if backend.callCount != 0 || len(backend.sent) != 0 {
		t.Fatal("network traffic happened before percentage validation")
	}
}

func TestBorrowPercentageSizesFromAvailableCapacity(t *testing.T) {
	backend := newFakeBackend()
	stubPosition(t, backend)
	client := newTestClient(t, backend)

	if _, err := client.BorrowPercentage(context.Background(), testDAI(),
		decimal.RequireFromString("0.5"), RateVariable, nil); err != nil {
		t.Fatalf("BorrowPercentage: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions, want one borrow", len(backend.sent))
	}
	args, err := lendingPoolABI.Methods["borrow"].Inputs.Unpack(backend.sent[0].Data()[4:])
	if err != nil {
		t.Fatalf("decode borrow calldata: %v", err)
	}
	// Half of the 1 ETH capacity at 0.5 ETH per token is 1 token.
	if got := args[1].(*big.Int); got.Cmp(eth("1000000000000000000")) != 0 {
		t.Fatalf("borrow amount = %s base units, want 1e18", got)
	}
}

func TestRepayPercentageSizesFromTotalDebt(t *testing.T) {
	backend := newFakeBackend()
	stubPosition(t, backend)
	backend.stub(t, erc20ABI, "allowance", eth("1000000000000000000000"))
	client := newTestClient(t, backend)

	if _, err := client.RepayPercentage(context.Background(), testDAI(),
		decimal.RequireFromString("1"), RateStable, nil); err != nil {
		t.Fatalf("RepayPercentage: %v", err)
	}

	args, err := lendingPoolABI.Methods["repay"].Inputs.Unpack(backend.sent[0].Data()[4:])
	if err != nil {
		t.Fatalf("decode repay calldata: %v", err)
	}
	// The full 0.5 ETH debt at 0.5 ETH per token is 1 token.
	if got := args[1].(*big.Int); got.Cmp(eth("1000000000000000000")) != 0 {
		t.Fatalf("repay amount = %s base units, want 1e18", got)
	}
	if got := args[2].(*big.Int).Int64(); got != 1 {
		t.Fatalf("repay rate code = %d, want the stable mode 1", got)
	}
}

func TestWithdrawPercentageSizesFromCollateral(t *testing.T) {
	backend := newFakeBackend()
	stubPosition(t, backend)
	backend.stub(t, erc20ABI, "allowance", eth("1000000000000000000000"))
	client := newTestClient(t, backend)

	if _, err := client.WithdrawPercentage(context.Background(), testDAI(),
		decimal.RequireFromString("0.25"), nil); err != nil {
		t.Fatalf("WithdrawPercentage: %v", err)
	}

	args, err := lendingPoolABI.Methods["withdraw"].Inputs.Unpack(backend.sent[0].Data()[4:])
	if err != nil {
		t.Fatalf("decode withdraw calldata: %v", err)
	}
	// A quarter of the 2 ETH collateral at 0.5 ETH per token is 1 token.
	if got := args[1].(*big.Int); got.Cmp(eth("1000000000000000000")) != 0 {
		t.Fatalf("withdraw amount = %s base units, want 1e18", got)
	}
}

func TestRepayPercentageRejectsUnknownRateMode(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	_, err := client.RepayPercentage(context.Background(), testDAI(),
		decimal.RequireFromString("0.5"), RateMode("turbo"), nil)
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("err = %v, want a usage error", err)
	}
	if backend.callCount != 0 {
		t.Fatal("network traffic happened before rate mode validation")
	}
}
