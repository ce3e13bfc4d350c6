package aave

import (
	"math/big"

	"github.com/shopspring/decimal"

	clierr "aaveclient/internal/errors"
)

// Operation identifies which client action produced a trade receipt.
type Operation string

const (
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpBorrow   Operation = "borrow"
	OpRepay    Operation = "repay"
	OpWrap     Operation = "wrap"
)

// RateMode is the caller-facing interest rate mode for borrow and repay.
type RateMode string

const (
	RateStable   RateMode = "stable"
	RateVariable RateMode = "variable"
)

// The protocol encodes the rate mode differently per operation: borrow uses
// stable=1/variable=0 while repay uses stable=1/variable=2. Both tables mirror
// the deployed contract interface and must not be unified.
var (
	borrowRateModeCodes = map[RateMode]int64{
		RateStable:   1,
		RateVariable: 0,
	}
	repayRateModeCodes = map[RateMode]int64{
		RateStable:   1,
		RateVariable: 2,
	}
)

func borrowRateModeCode(mode RateMode) (int64, error) {
	code, ok := borrowRateModeCodes[mode]
	if !ok {
		return 0, clierr.New(clierr.CodeUsage,
			"invalid interest rate mode \""+string(mode)+"\": valid modes are \"stable\" and \"variable\"")
	}
	return code, nil
}

func repayRateModeCode(mode RateMode) (int64, error) {
	code, ok := repayRateModeCodes[mode]
	if !ok {
		return 0, clierr.New(clierr.CodeUsage,
			"invalid interest rate mode \""+string(mode)+"\": valid modes are \"stable\" and \"variable\"")
	}
	return code, nil
}

// TradeReceipt is the structured record of one completed mutating operation.
// GasCostETH covers the action's own gas plus any prerequisite approval's gas.
// Constructed once when the transaction reaches a mined state, never mutated.
type TradeReceipt struct {
	TxHash          string          `json:"tx_hash"`
	ConfirmedAtUnix int64           `json:"confirmed_at_unix"`
	ConfirmedAt     string          `json:"confirmed_at"`
	FromAddress     string          `json:"from_address"`
	ToAddress       string          `json:"to_address"`
	GasCostETH      decimal.Decimal `json:"gas_cost_eth"`
	AssetSymbol     string          `json:"asset_symbol"`
	AssetAddress    string          `json:"asset_address"`
	Amount          decimal.Decimal `json:"amount"`
	AmountBaseUnits string          `json:"amount_base_units"`
	RateMode        RateMode        `json:"rate_mode,omitempty"`
	Operation       Operation       `json:"operation"`
}

// ApprovalResult reports the outcome of an ERC20 approval step. When the
// existing allowance already covered the requested amount, Sent is false and
// the result carries no hash and zero gas cost.
type ApprovalResult struct {
	Sent       bool
	TxHash     string
	GasCostETH decimal.Decimal
}

func baseUnitsString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
