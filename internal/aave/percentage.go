package aave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/token"
)

// The percentage helpers size an operation as a fraction of the wallet's
// current position instead of an absolute amount. The snapshot figure is in
// the reference currency, so the target amount is converted into the asset
// through the oracle before the underlying operation runs.

func validatePercentage(pct decimal.Decimal) error {
	if pct.LessThanOrEqual(decimal.Zero) || pct.GreaterThan(decimal.NewFromInt(1)) {
		return clierr.New(clierr.CodeUsage,
			fmt.Sprintf("percentage %s is out of range: it must be above 0 and at most 1.0", pct))
	}
	return nil
}

// percentageAmount converts a reference-currency figure scaled by pct into
// asset display units using the oracle's wrapped-native-per-asset rate.
func (c *Client) percentageAmount(ctx context.Context, asset token.ReserveToken, referenceAmount, pct decimal.Decimal) (decimal.Decimal, error) {
	weth := c.wrappedNativeToken()
	rate, err := c.GetAssetPrice(ctx, weth, &asset)
	if err != nil {
		return decimal.Zero, err
	}
	return referenceAmount.Mul(pct).Mul(rate), nil
}

// BorrowPercentage borrows a fraction of the wallet's remaining borrow
// capacity in the given asset.
func (c *Client) BorrowPercentage(ctx context.Context, asset token.ReserveToken, pct decimal.Decimal, rateMode RateMode, nonce *uint64) (*TradeReceipt, error) {
	if err := validatePercentage(pct); err != nil {
		return nil, err
	}
	if _, err := borrowRateModeCode(rateMode); err != nil {
		return nil, err
	}
	snapshot, err := c.GetAccountSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	amount, err := c.percentageAmount(ctx, asset, snapshot.AvailableBorrows, pct)
	if err != nil {
		return nil, err
	}
	return c.Borrow(ctx, asset, amount, rateMode, nonce)
}

// WithdrawPercentage withdraws a fraction of the wallet's total collateral
// in the given asset.
func (c *Client) WithdrawPercentage(ctx context.Context, asset token.ReserveToken, pct decimal.Decimal, nonce *uint64) (*TradeReceipt, error) {
	if err := validatePercentage(pct); err != nil {
		return nil, err
	}
	snapshot, err := c.GetAccountSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	amount, err := c.percentageAmount(ctx, asset, snapshot.TotalCollateral, pct)
	if err != nil {
		return nil, err
	}
	return c.Withdraw(ctx, asset, amount, nonce)
}

// RepayPercentage repays a fraction of the wallet's total outstanding debt
// in the given asset.
func (c *Client) RepayPercentage(ctx context.Context, asset token.ReserveToken, pct decimal.Decimal, rateMode RateMode, nonce *uint64) (*TradeReceipt, error) {
	if err := validatePercentage(pct); err != nil {
		return nil, err
	}
	if _, err := repayRateModeCode(rateMode); err != nil {
		return nil, err
	}
	snapshot, err := c.GetAccountSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	amount, err := c.percentageAmount(ctx, asset, snapshot.TotalDebt, pct)
	if err != nil {
		return nil, err
	}
	return c.Repay(ctx, asset, amount, rateMode, nonce)
}
