package aave

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/token"
	"aaveclient/internal/units"
)

// AccountSnapshot is the wallet's aggregate protocol position. The three
// currency figures are denominated in the protocol's reference currency
// (ETH on these deployments). Threshold, LTV, and health factor stay in the
// contract's raw fixed-point encoding so no precision is lost downstream.
type AccountSnapshot struct {
	TotalCollateral      decimal.Decimal `json:"total_collateral"`
	TotalDebt            decimal.Decimal `json:"total_debt"`
	AvailableBorrows     decimal.Decimal `json:"available_borrows"`
	LiquidationThreshold *big.Int        `json:"liquidation_threshold"`
	LoanToValue          *big.Int        `json:"loan_to_value"`
	HealthFactor         *big.Int        `json:"health_factor"`
}

// UserReserveData is the wallet's per-reserve position detail.
type UserReserveData struct {
	CurrentATokenBalance     *big.Int `json:"current_atoken_balance"`
	CurrentStableDebt        *big.Int `json:"current_stable_debt"`
	CurrentVariableDebt      *big.Int `json:"current_variable_debt"`
	PrincipalStableDebt      *big.Int `json:"principal_stable_debt"`
	ScaledVariableDebt       *big.Int `json:"scaled_variable_debt"`
	StableBorrowRate         *big.Int `json:"stable_borrow_rate"`
	LiquidityRate            *big.Int `json:"liquidity_rate"`
	StableRateLastUpdated    uint64   `json:"stable_rate_last_updated"`
	UsageAsCollateralEnabled bool     `json:"usage_as_collateral_enabled"`
}

// ReserveBalance is the wallet's full position in one reserve, in that
// token's display units: supplied collateral, both debt legs, and the
// spendable wallet balance.
type ReserveBalance struct {
	Token         token.ReserveToken `json:"token"`
	Collateral    decimal.Decimal    `json:"collateral"`
	StableDebt    decimal.Decimal    `json:"stable_debt"`
	VariableDebt  decimal.Decimal    `json:"variable_debt"`
	WalletBalance decimal.Decimal    `json:"wallet_balance"`
}

func (b ReserveBalance) empty() bool {
	return b.Collateral.IsZero() && b.StableDebt.IsZero() &&
		b.VariableDebt.IsZero() && b.WalletBalance.IsZero()
}

// GetAccountSnapshot reads the wallet's aggregate position from the lending
// pool. With inReferenceUnits set, the three currency figures are converted
// from wei into whole reference-currency units; otherwise they stay as the
// contract's raw integers. The ratio fields are raw either way.
func (c *Client) GetAccountSnapshot(ctx context.Context, inReferenceUnits bool) (*AccountSnapshot, error) {
	pool, err := c.lendingPool(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.callRead(ctx, pool, lendingPoolABI, "getUserAccountData", c.wallet)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected account data shape: got %d fields, want 6", len(out)))
	}
	fields := make([]*big.Int, 6)
	for i, v := range out {
		value, ok := v.(*big.Int)
		if !ok {
			return nil, clierr.New(clierr.CodeDecode,
				fmt.Sprintf("unexpected account data field %d type %T", i, v))
		}
		fields[i] = value
	}
	currency := func(v *big.Int) decimal.Decimal {
		if inReferenceUnits {
			return units.FromWei(v)
		}
		return decimal.NewFromBigInt(v, 0)
	}
	return &AccountSnapshot{
		TotalCollateral:      currency(fields[0]),
		TotalDebt:            currency(fields[1]),
		AvailableBorrows:     currency(fields[2]),
		LiquidationThreshold: fields[3],
		LoanToValue:          fields[4],
		HealthFactor:         fields[5],
	}, nil
}

// GetAssetPrice quotes base in the reference currency, or in the quote asset
// when one is supplied. A pair quote divides the two oracle prices, so both
// legs come from the same oracle read path.
func (c *Client) GetAssetPrice(ctx context.Context, base token.ReserveToken, quote *token.ReserveToken) (decimal.Decimal, error) {
	oracle, err := c.priceOracle(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	basePrice, err := c.oraclePrice(ctx, oracle, base)
	if err != nil {
		return decimal.Zero, err
	}
	if quote == nil {
		return basePrice, nil
	}
	quotePrice, err := c.oraclePrice(ctx, oracle, *quote)
	if err != nil {
		return decimal.Zero, err
	}
	if quotePrice.IsZero() {
		return decimal.Zero, clierr.New(clierr.CodeUsage,
			fmt.Sprintf("cannot quote %s in %s: the oracle reports a zero price for %s", base.Symbol, quote.Symbol, quote.Symbol))
	}
	return basePrice.Div(quotePrice), nil
}

func (c *Client) oraclePrice(ctx context.Context, oracle common.Address, asset token.ReserveToken) (decimal.Decimal, error) {
	out, err := c.callRead(ctx, oracle, priceOracleABI, "getAssetPrice", common.HexToAddress(asset.Address))
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, clierr.New(clierr.CodeDecode, "unexpected oracle price reply")
	}
	return units.FromWei(price), nil
}

// GetUserReserveData reads the wallet's detailed position in one reserve
// from the protocol data provider.
func (c *Client) GetUserReserveData(ctx context.Context, asset token.ReserveToken) (*UserReserveData, error) {
	provider := common.HexToAddress(c.settings.Network.ProtocolDataProvider)
	out, err := c.callRead(ctx, provider, dataProviderABI, "getUserReserveData",
		common.HexToAddress(asset.Address), c.wallet)
	if err != nil {
		return nil, err
	}
	if len(out) != 9 {
		return nil, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected reserve data shape: got %d fields, want 9", len(out)))
	}
	data := &UserReserveData{}
	ints := []**big.Int{
		&data.CurrentATokenBalance, &data.CurrentStableDebt, &data.CurrentVariableDebt,
		&data.PrincipalStableDebt, &data.ScaledVariableDebt, &data.StableBorrowRate,
		&data.LiquidityRate,
	}
	for i, dst := range ints {
		value, ok := out[i].(*big.Int)
		if !ok {
			return nil, clierr.New(clierr.CodeDecode,
				fmt.Sprintf("unexpected reserve data field %d type %T", i, out[i]))
		}
		*dst = value
	}
	lastUpdated, ok := out[7].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected reserve data field 7 type %T", out[7]))
	}
	data.StableRateLastUpdated = lastUpdated.Uint64()
	enabled, ok := out[8].(bool)
	if !ok {
		return nil, clierr.New(clierr.CodeDecode,
			fmt.Sprintf("unexpected reserve data field 8 type %T", out[8]))
	}
	data.UsageAsCollateralEnabled = enabled
	return data, nil
}

// GetReserveBalance reads the wallet's ERC20 balance of the reserve's
// underlying token, converted to display units.
func (c *Client) GetReserveBalance(ctx context.Context, asset token.ReserveToken) (decimal.Decimal, error) {
	out, err := c.callRead(ctx, common.HexToAddress(asset.Address), erc20ABI, "balanceOf", c.wallet)
	if err != nil {
		return decimal.Zero, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, clierr.New(clierr.CodeDecode, "unexpected balance reply")
	}
	return units.FromBaseUnits(raw, asset.Decimals)
}

// GetAllReserveBalances reads the wallet's position across every registered
// reserve: one reserve-data read plus one wallet-balance read per token. With
// hideEmpty set, reserves where all four figures are zero are dropped.
func (c *Client) GetAllReserveBalances(ctx context.Context, hideEmpty bool) ([]ReserveBalance, error) {
	tokens := c.tokens.List()
	if len(tokens) == 0 {
		return nil, clierr.New(clierr.CodeNotFound,
			fmt.Sprintf("no reserve tokens registered for the %s network", c.settings.Network.Name))
	}
	balances := make([]ReserveBalance, 0, len(tokens))
	for _, t := range tokens {
		position, err := c.GetUserReserveData(ctx, t)
		if err != nil {
			return nil, err
		}
		wallet, err := c.GetReserveBalance(ctx, t)
		if err != nil {
			return nil, err
		}
		collateral, err := units.FromBaseUnits(position.CurrentATokenBalance, t.Decimals)
		if err != nil {
			return nil, err
		}
		stableDebt, err := units.FromBaseUnits(position.CurrentStableDebt, t.Decimals)
		if err != nil {
			return nil, err
		}
		variableDebt, err := units.FromBaseUnits(position.CurrentVariableDebt, t.Decimals)
		if err != nil {
			return nil, err
		}
		balance := ReserveBalance{
			Token:         t,
			Collateral:    collateral,
			StableDebt:    stableDebt,
			VariableDebt:  variableDebt,
			WalletBalance: wallet,
		}
		if hideEmpty && balance.empty() {
			continue
		}
		balances = append(balances, balance)
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Token.Symbol < balances[j].Token.Symbol
	})
	return balances, nil
}
