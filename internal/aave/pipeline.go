package aave

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/token"
	"aaveclient/internal/units"
)

const (
	receiptPollInterval = 2 * time.Second
	gasLimitMultiplier  = 120 // percent

	// The referral program is discontinued; the protocol requires the zero
	// code on deposit and borrow.
	referralCode = uint16(0)
)

// resolveNonce returns the explicit nonce when the caller supplied one,
// otherwise the wallet's current pending transaction count. Callers retrying
// a failed transaction must pass the nonce explicitly so a re-invocation
// cannot double-spend through nonce reuse.
func (c *Client) resolveNonce(ctx context.Context, explicit *uint64) (uint64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "fetch wallet nonce", err)
	}
	return nonce, nil
}

// ApproveERC20 lets spender pull exactly amount base units from the wallet.
// Unless force is set, an allowance already covering the amount short-circuits
// to a zero-cost result with no transaction sent.
func (c *Client) ApproveERC20(ctx context.Context, tokenAddress, spender common.Address, amount *big.Int, nonce *uint64, force bool) (ApprovalResult, error) {
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return ApprovalResult{}, err
	}

	if !force {
		out, err := c.callRead(ctx, tokenAddress, erc20ABI, "allowance", c.wallet, spender)
		if err != nil {
			return ApprovalResult{}, err
		}
		allowance, ok := out[0].(*big.Int)
		if !ok {
			return ApprovalResult{}, clierr.New(clierr.CodeDecode, "unexpected allowance reply")
		}
		if allowance.Cmp(amount) >= 0 {
			return ApprovalResult{Sent: false, GasCostETH: decimal.Zero}, nil
		}
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return ApprovalResult{}, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	receipt, txHash, err := c.sendAndConfirm(ctx, tokenAddress, data, nil, baseNonce)
	if err != nil {
		return ApprovalResult{}, err
	}
	c.log.Info("approved token spend",
		zap.String("token", tokenAddress.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount_base_units", amount.String()))
	return ApprovalResult{Sent: true, TxHash: txHash.Hex(), GasCostETH: gasCostETH(receipt)}, nil
}

// WrapNative deposits native currency into the wrapped-native-token contract.
// The deposit call itself is payable, so no approval is involved.
func (c *Client) WrapNative(ctx context.Context, amount decimal.Decimal, nonce *uint64) (*TradeReceipt, error) {
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	wethToken := c.wrappedNativeToken()
	value := units.ToWei(amount)

	c.log.Info("wrapping native currency", zap.String("amount", amount.String()))
	data, err := wethABI.Pack("deposit")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack weth deposit calldata", err)
	}
	wethAddress := common.HexToAddress(wethToken.Address)
	receipt, txHash, err := c.sendAndConfirm(ctx, wethAddress, data, value, baseNonce)
	if err != nil {
		return nil, err
	}
	return c.buildTradeReceipt(receipt, txHash, wethAddress, wethToken, amount, value, "", OpWrap, decimal.Zero), nil
}

// Deposit supplies collateral: approve the lending pool for the amount, then
// deposit it.
func (c *Client) Deposit(ctx context.Context, asset token.ReserveToken, amount decimal.Decimal, nonce *uint64) (*TradeReceipt, error) {
	baseUnits, err := units.ToBaseUnits(amount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	pool, err := c.lendingPool(ctx)
	if err != nil {
		return nil, err
	}

	seq := newNonceSequence(baseNonce, true)
	approvalGas, err := c.runApprovalStep(ctx, asset, pool, baseUnits, seq, OpDeposit)
	if err != nil {
		return nil, err
	}

	c.log.Info("depositing collateral",
		zap.String("asset", asset.Symbol), zap.String("amount", amount.String()))
	data, err := lendingPoolABI.Pack("deposit", common.HexToAddress(asset.Address), baseUnits, c.wallet, referralCode)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack deposit calldata", err)
	}
	actionNonce, err := seq.ActionNonce()
	if err != nil {
		return nil, err
	}
	receipt, txHash, err := c.sendAndConfirm(ctx, pool, data, nil, actionNonce)
	if err != nil {
		return nil, err
	}
	return c.buildTradeReceipt(receipt, txHash, pool, asset, amount, baseUnits, "", OpDeposit, approvalGas), nil
}

// Withdraw redeems collateral and burns the corresponding interest-bearing
// token.
func (c *Client) Withdraw(ctx context.Context, asset token.ReserveToken, amount decimal.Decimal, nonce *uint64) (*TradeReceipt, error) {
	baseUnits, err := units.ToBaseUnits(amount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	pool, err := c.lendingPool(ctx)
	if err != nil {
		return nil, err
	}

	seq := newNonceSequence(baseNonce, true)
	approvalGas, err := c.runApprovalStep(ctx, asset, pool, baseUnits, seq, OpWithdraw)
	if err != nil {
		return nil, err
	}

	c.log.Info("withdrawing collateral",
		zap.String("asset", asset.Symbol), zap.String("amount", amount.String()))
	data, err := lendingPoolABI.Pack("withdraw", common.HexToAddress(asset.Address), baseUnits, c.wallet)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack withdraw calldata", err)
	}
	actionNonce, err := seq.ActionNonce()
	if err != nil {
		return nil, err
	}
	receipt, txHash, err := c.sendAndConfirm(ctx, pool, data, nil, actionNonce)
	if err != nil {
		return nil, err
	}
	return c.buildTradeReceipt(receipt, txHash, pool, asset, amount, baseUnits, "", OpWithdraw, approvalGas), nil
}

// Borrow draws the asset against existing collateral. Borrowing pulls no
// caller-owned tokens, so there is no approval step.
func (c *Client) Borrow(ctx context.Context, asset token.ReserveToken, amount decimal.Decimal, rateMode RateMode, nonce *uint64) (*TradeReceipt, error) {
	rateCode, err := borrowRateModeCode(rateMode)
	if err != nil {
		return nil, err
	}
	baseUnits, err := units.ToBaseUnits(amount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	pool, err := c.lendingPool(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Info("borrowing asset",
		zap.String("asset", asset.Symbol),
		zap.String("amount", amount.String()),
		zap.String("rate_mode", string(rateMode)))
	data, err := lendingPoolABI.Pack("borrow", common.HexToAddress(asset.Address), baseUnits, big.NewInt(rateCode), referralCode, c.wallet)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack borrow calldata", err)
	}
	receipt, txHash, err := c.sendAndConfirm(ctx, pool, data, nil, baseNonce)
	if err != nil {
		return nil, err
	}
	return c.buildTradeReceipt(receipt, txHash, pool, asset, amount, baseUnits, rateMode, OpBorrow, decimal.Zero), nil
}

// Repay pays down outstanding debt: approve the lending pool for the amount,
// then repay.
func (c *Client) Repay(ctx context.Context, asset token.ReserveToken, amount decimal.Decimal, rateMode RateMode, nonce *uint64) (*TradeReceipt, error) {
	rateCode, err := repayRateModeCode(rateMode)
	if err != nil {
		return nil, err
	}
	baseUnits, err := units.ToBaseUnits(amount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	baseNonce, err := c.resolveNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	pool, err := c.lendingPool(ctx)
	if err != nil {
		return nil, err
	}

	seq := newNonceSequence(baseNonce, true)
	approvalGas, err := c.runApprovalStep(ctx, asset, pool, baseUnits, seq, OpRepay)
	if err != nil {
		return nil, err
	}

	c.log.Info("repaying debt",
		zap.String("asset", asset.Symbol),
		zap.String("amount", amount.String()),
		zap.String("rate_mode", string(rateMode)))
	data, err := lendingPoolABI.Pack("repay", common.HexToAddress(asset.Address), baseUnits, big.NewInt(rateCode), c.wallet)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack repay calldata", err)
	}
	actionNonce, err := seq.ActionNonce()
	if err != nil {
		return nil, err
	}
	receipt, txHash, err := c.sendAndConfirm(ctx, pool, data, nil, actionNonce)
	if err != nil {
		return nil, err
	}
	return c.buildTradeReceipt(receipt, txHash, pool, asset, amount, baseUnits, rateMode, OpRepay, approvalGas), nil
}

// runApprovalStep performs the prerequisite approval for an approve-then-act
// operation and advances the nonce sequence. A failure here means the primary
// action was never attempted, which callers can tell apart by the approval
// error code.
func (c *Client) runApprovalStep(ctx context.Context, asset token.ReserveToken, pool common.Address, baseUnits *big.Int, seq *nonceSequence, op Operation) (decimal.Decimal, error) {
	approvalNonce, err := seq.ApprovalNonce()
	if err != nil {
		return decimal.Zero, err
	}
	approval, err := c.ApproveERC20(ctx, common.HexToAddress(asset.Address), pool, baseUnits, &approvalNonce, false)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeApproval,
			fmt.Sprintf("could not approve %s transaction for %s; the %s was not attempted", op, asset.Symbol, op), err)
	}
	if approval.Sent {
		seq.ApprovalSent()
	} else {
		seq.ApprovalSkipped()
	}
	return approval.GasCostETH, nil
}

// sendAndConfirm runs one transaction through the full pipeline: estimate
// gas, price the fee per the configured strategy, sign, broadcast, and poll
// until the receipt lands or the strategy timeout expires.
func (c *Client) sendAndConfirm(ctx context.Context, target common.Address, data []byte, value *big.Int, nonce uint64) (*types.Receipt, common.Hash, error) {
	if c.signer == nil {
		return nil, common.Hash{}, clierr.New(clierr.CodeConfig, "missing wallet private key: mutating operations require a signer")
	}
	if value == nil {
		value = new(big.Int)
	}

	msg := ethereum.CallMsg{From: c.wallet, To: &target, Value: value, Data: data}
	gasLimit, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "estimate gas", err)
	}
	gasLimit = gasLimit * gasLimitMultiplier / 100

	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	tipCap = new(big.Int).Div(new(big.Int).Mul(tipCap, big.NewInt(c.settings.GasStrategy.TipPercent())), big.NewInt(100))

	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(c.settings.Network.ChainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := c.signer.SignTx(big.NewInt(c.settings.Network.ChainID), tx)
	if err != nil {
		return nil, common.Hash{}, clierr.Wrap(clierr.CodeInternal, "sign transaction", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}

	receipt, err := c.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, common.Hash{}, err
	}
	return receipt, signed.Hash(), nil
}

// waitForReceipt polls for the mined receipt until the gas strategy's
// confirmation window closes. On timeout the transaction's on-chain outcome
// is unknown: it may still be mined later.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	timeout := c.settings.GasStrategy.ConfirmationTimeout()
	c.log.Info("awaiting transaction receipt",
		zap.String("tx_hash", txHash.Hex()), zap.Duration("timeout", timeout))

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, clierr.New(clierr.CodeUnavailable, "transaction reverted on-chain")
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			// Transient polling failures are retried until the window closes.
			c.log.Debug("receipt poll failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeTimeout,
				fmt.Sprintf("timed out after %s waiting for transaction %s; its on-chain outcome is unknown", timeout, txHash.Hex()),
				waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) buildTradeReceipt(receipt *types.Receipt, txHash common.Hash, to common.Address, asset token.ReserveToken, amount decimal.Decimal, baseUnits *big.Int, rateMode RateMode, op Operation, approvalGas decimal.Decimal) *TradeReceipt {
	confirmedAt := time.Now().UTC()
	trade := &TradeReceipt{
		TxHash:          txHash.Hex(),
		ConfirmedAtUnix: confirmedAt.Unix(),
		ConfirmedAt:     confirmedAt.Format(time.RFC3339),
		FromAddress:     c.wallet.Hex(),
		ToAddress:       to.Hex(),
		GasCostETH:      gasCostETH(receipt).Add(approvalGas),
		AssetSymbol:     asset.Symbol,
		AssetAddress:    asset.Address,
		Amount:          amount,
		AmountBaseUnits: baseUnitsString(baseUnits),
		RateMode:        rateMode,
		Operation:       op,
	}
	c.log.Info("trade confirmed",
		zap.String("operation", string(op)),
		zap.String("asset", asset.Symbol),
		zap.String("tx_hash", trade.TxHash),
		zap.String("gas_cost_eth", trade.GasCostETH.String()))
	return trade
}

// wrappedNativeToken describes WETH for receipts, preferring registry
// metadata when the registry has been populated.
func (c *Client) wrappedNativeToken() token.ReserveToken {
	if t, err := c.tokens.Resolve("WETH"); err == nil {
		return t
	}
	return token.ReserveToken{
		Symbol:   "WETH",
		Address:  c.settings.Network.WETHToken,
		Decimals: 18,
	}
}

func gasCostETH(receipt *types.Receipt) decimal.Decimal {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return decimal.Zero
	}
	cost := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	return units.FromWei(cost)
}
