package store

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"aaveclient/internal/aave"
	clierr "aaveclient/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "trades.db"), filepath.Join(dir, "trades.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReceipt(hash string, op aave.Operation, confirmedAt int64) *aave.TradeReceipt {
	return &aave.TradeReceipt{
		TxHash:          hash,
		ConfirmedAtUnix: confirmedAt,
		FromAddress:     "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		GasCostETH:      decimal.RequireFromString("0.00042"),
		AssetSymbol:     "DAI",
		Amount:          decimal.RequireFromString("25"),
		AmountBaseUnits: "25000000000000000000",
		Operation:       op,
	}
}

func TestStoreSaveGetList(t *testing.T) {
	s := openTestStore(t)

	first := sampleReceipt("0xaaa", aave.OpDeposit, 1000)
	if err := s.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(sampleReceipt("0xbbb", aave.OpBorrow, 2000)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get("0xaaa")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Operation != aave.OpDeposit || !got.Amount.Equal(first.Amount) {
		t.Fatalf("unexpected trade: %+v", got)
	}

	all, err := s.List("", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].TxHash != "0xbbb" {
		t.Fatalf("expected newest-first list of 2 trades, got %d (first %s)", len(all), all[0].TxHash)
	}

	deposits, err := s.List(string(aave.OpDeposit), 10)
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(deposits) != 1 || deposits[0].TxHash != "0xaaa" {
		t.Fatalf("expected only the deposit, got %d trades", len(deposits))
	}
}

func TestStoreUpsertByTxHash(t *testing.T) {
	s := openTestStore(t)

	if err := s.Save(sampleReceipt("0xaaa", aave.OpDeposit, 1000)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	updated := sampleReceipt("0xaaa", aave.OpDeposit, 1000)
	updated.Amount = decimal.RequireFromString("30")
	if err := s.Save(updated); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}

	all, err := s.List("", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 || !all[0].Amount.Equal(updated.Amount) {
		t.Fatalf("expected single updated trade, got %d", len(all))
	}
}

func TestStoreGetMissingTrade(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("0xmissing"); !clierr.Is(err, clierr.CodeNotFound) {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}

func TestStoreRejectsMissingHash(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(&aave.TradeReceipt{}); err == nil {
		t.Fatal("expected an error for the empty transaction hash")
	}
}
