package app

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"aaveclient/internal/aave"
	clierr "aaveclient/internal/errors"
	"aaveclient/internal/token"
	"aaveclient/internal/units"
)

// tradeFlags are the inputs shared by the mutating commands. An amount and a
// percentage are mutually exclusive ways to size the operation.
type tradeFlags struct {
	asset      string
	amount     string
	percentage string
	rateMode   string
	nonce      int64
	noStore    bool
}

func (f *tradeFlags) register(cmd *cobra.Command, withRateMode bool, defaultRate string) {
	cmd.Flags().StringVar(&f.asset, "asset", "", "Reserve token symbol")
	cmd.Flags().StringVar(&f.amount, "amount", "", "Amount in display units")
	cmd.Flags().StringVar(&f.percentage, "percentage", "", "Size as a fraction of the current position (0 to 1]")
	if withRateMode {
		cmd.Flags().StringVar(&f.rateMode, "rate-mode", defaultRate, "Interest rate mode (stable|variable)")
	}
	cmd.Flags().Int64Var(&f.nonce, "nonce", -1, "Explicit wallet nonce (for retrying a stuck transaction)")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "Skip recording the trade receipt locally")
	_ = cmd.MarkFlagRequired("asset")
}

func (f *tradeFlags) explicitNonce() *uint64 {
	if f.nonce < 0 {
		return nil
	}
	n := uint64(f.nonce)
	return &n
}

func (f *tradeFlags) sizing() (amount, pct decimal.Decimal, usePct bool, err error) {
	hasAmount := strings.TrimSpace(f.amount) != ""
	hasPct := strings.TrimSpace(f.percentage) != ""
	switch {
	case hasAmount && hasPct:
		return decimal.Zero, decimal.Zero, false, clierr.New(clierr.CodeUsage,
			"--amount and --percentage are mutually exclusive")
	case hasAmount:
		amount, err = units.ParseAmount(f.amount)
		return amount, decimal.Zero, false, err
	case hasPct:
		pct, perr := decimal.NewFromString(strings.TrimSpace(f.percentage))
		if perr != nil {
			return decimal.Zero, decimal.Zero, false, clierr.Wrap(clierr.CodeUsage, "parse --percentage", perr)
		}
		return decimal.Zero, pct, true, nil
	default:
		return decimal.Zero, decimal.Zero, false, clierr.New(clierr.CodeUsage,
			"one of --amount or --percentage is required")
	}
}

// runTrade resolves the asset, executes the operation, and records the
// receipt.
func (s *runtimeState) runTrade(ctx context.Context, flags *tradeFlags,
	run func(ctx context.Context, client *aave.Client, asset token.ReserveToken) (*aave.TradeReceipt, error)) error {
	client, err := s.newClient(ctx)
	if err != nil {
		return err
	}
	asset, err := client.Tokens().Resolve(flags.asset)
	if err != nil {
		return err
	}
	receipt, err := run(ctx, client, asset)
	if err != nil {
		return err
	}
	if !flags.noStore {
		s.saveReceipt(receipt)
	}
	return s.emit(receipt)
}

func (s *runtimeState) newWrapCommand() *cobra.Command {
	var amountArg string
	var nonceArg int64
	var noStore bool
	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap native currency into the wrapped native token",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := units.ParseAmount(amountArg)
			if err != nil {
				return err
			}
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			var nonce *uint64
			if nonceArg >= 0 {
				n := uint64(nonceArg)
				nonce = &n
			}
			receipt, err := client.WrapNative(cmd.Context(), amount, nonce)
			if err != nil {
				return err
			}
			if !noStore {
				s.saveReceipt(receipt)
			}
			return s.emit(receipt)
		},
	}
	cmd.Flags().StringVar(&amountArg, "amount", "", "Amount of native currency to wrap")
	cmd.Flags().Int64Var(&nonceArg, "nonce", -1, "Explicit wallet nonce (for retrying a stuck transaction)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Skip recording the trade receipt locally")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newDepositCommand() *cobra.Command {
	flags := &tradeFlags{}
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Supply an asset as collateral",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _, usePct, err := flags.sizing()
			if err != nil {
				return err
			}
			if usePct {
				return clierr.New(clierr.CodeUsage, "deposit sizes by --amount only")
			}
			return s.runTrade(cmd.Context(), flags, func(ctx context.Context, client *aave.Client, asset token.ReserveToken) (*aave.TradeReceipt, error) {
				return client.Deposit(ctx, asset, amount, flags.explicitNonce())
			})
		},
	}
	flags.register(cmd, false, "")
	return cmd
}

func (s *runtimeState) newWithdrawCommand() *cobra.Command {
	flags := &tradeFlags{}
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Redeem supplied collateral",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, pct, usePct, err := flags.sizing()
			if err != nil {
				return err
			}
			return s.runTrade(cmd.Context(), flags, func(ctx context.Context, client *aave.Client, asset token.ReserveToken) (*aave.TradeReceipt, error) {
				if usePct {
					return client.WithdrawPercentage(ctx, asset, pct, flags.explicitNonce())
				}
				return client.Withdraw(ctx, asset, amount, flags.explicitNonce())
			})
		},
	}
	flags.register(cmd, false, "")
	return cmd
}

func (s *runtimeState) newBorrowCommand() *cobra.Command {
	flags := &tradeFlags{}
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow an asset against supplied collateral",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, pct, usePct, err := flags.sizing()
			if err != nil {
				return err
			}
			rate := aave.RateMode(strings.ToLower(flags.rateMode))
			return s.runTrade(cmd.Context(), flags, func(ctx context.Context, client *aave.Client, asset token.ReserveToken) (*aave.TradeReceipt, error) {
				if usePct {
					return client.BorrowPercentage(ctx, asset, pct, rate, flags.explicitNonce())
				}
				return client.Borrow(ctx, asset, amount, rate, flags.explicitNonce())
			})
		},
	}
	flags.register(cmd, true, string(aave.RateVariable))
	return cmd
}

func (s *runtimeState) newRepayCommand() *cobra.Command {
	flags := &tradeFlags{}
	cmd := &cobra.Command{
		Use:   "repay",
		Short: "Pay down outstanding debt",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, pct, usePct, err := flags.sizing()
			if err != nil {
				return err
			}
			rate := aave.RateMode(strings.ToLower(flags.rateMode))
			return s.runTrade(cmd.Context(), flags, func(ctx context.Context, client *aave.Client, asset token.ReserveToken) (*aave.TradeReceipt, error) {
				if usePct {
					return client.RepayPercentage(ctx, asset, pct, rate, flags.explicitNonce())
				}
				return client.Repay(ctx, asset, amount, rate, flags.explicitNonce())
			})
		},
	}
	flags.register(cmd, true, string(aave.RateStable))
	return cmd
}

func (s *runtimeState) newApproveCommand() *cobra.Command {
	var assetArg, spenderArg, amountArg string
	var nonceArg int64
	var force bool
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a spender for an exact token amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(spenderArg) {
				return clierr.New(clierr.CodeUsage, "--spender must be a hex address")
			}
			amount, err := units.ParseAmount(amountArg)
			if err != nil {
				return err
			}
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			asset, err := client.Tokens().Resolve(assetArg)
			if err != nil {
				return err
			}
			baseUnits, err := units.ToBaseUnits(amount, asset.Decimals)
			if err != nil {
				return err
			}
			var nonce *uint64
			if nonceArg >= 0 {
				n := uint64(nonceArg)
				nonce = &n
			}
			result, err := client.ApproveERC20(cmd.Context(), common.HexToAddress(asset.Address),
				common.HexToAddress(spenderArg), baseUnits, nonce, force)
			if err != nil {
				return err
			}
			return s.emit(struct {
				Sent       bool   `json:"sent"`
				TxHash     string `json:"tx_hash,omitempty"`
				GasCostETH string `json:"gas_cost_eth"`
				Amount     string `json:"amount_base_units"`
			}{Sent: result.Sent, TxHash: result.TxHash, GasCostETH: result.GasCostETH.String(), Amount: baseUnits.String()})
		},
	}
	cmd.Flags().StringVar(&assetArg, "asset", "", "Reserve token symbol")
	cmd.Flags().StringVar(&spenderArg, "spender", "", "Spender contract address")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Amount in display units")
	cmd.Flags().Int64Var(&nonceArg, "nonce", -1, "Explicit wallet nonce")
	cmd.Flags().BoolVar(&force, "force", false, "Send the approval even if the allowance already covers the amount")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("spender")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
