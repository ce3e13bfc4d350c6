package app

import (
	"bytes"
	"strings"
	"testing"

	"aaveclient/internal/version"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, key := range []string{
		"AAVE_MAINNET_RPC_URL", "AAVE_GOERLI_RPC_URL", "AAVE_WALLET_ADDRESS",
		"AAVE_PRIVATE_KEY", "AAVE_KEYSTORE_PATH", "AAVE_KEYSTORE_PASSWORD",
		"AAVE_GAS_STRATEGY", "AAVE_HTTP_TIMEOUT",
		"AAVE_HTTP_RETRIES", "AAVE_TRADES_PATH", "AAVE_TRADES_LOCK_PATH",
	} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)
	code := runner.Run(args)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	isolateEnv(t)
	code, stdout, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, version.CLIVersion) {
		t.Fatalf("stdout %q does not contain the version", stdout)
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "frobnicate")
	if code != 2 {
		t.Fatalf("exit code = %d, want the usage code 2 (stderr: %s)", code, stderr)
	}
}

func TestMissingEndpointIsConfigError(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "tokens")
	if code != 10 {
		t.Fatalf("exit code = %d, want the config code 10 (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stderr, "RPC URL") {
		t.Fatalf("stderr %q does not explain the missing endpoint", stderr)
	}
}

func TestBothEndpointsIsConfigError(t *testing.T) {
	isolateEnv(t)
	code, _, _ := runCLI(t, "tokens",
		"--mainnet-rpc-url", "http://localhost:8545",
		"--goerli-rpc-url", "http://localhost:8546")
	if code != 10 {
		t.Fatalf("exit code = %d, want the config code 10", code)
	}
}

func TestTradeFlagSizing(t *testing.T) {
	both := &tradeFlags{amount: "1", percentage: "0.5"}
	if _, _, _, err := both.sizing(); err == nil {
		t.Fatal("expected an error for --amount with --percentage")
	}

	neither := &tradeFlags{}
	if _, _, _, err := neither.sizing(); err == nil {
		t.Fatal("expected an error when neither sizing flag is set")
	}

	amount, _, usePct, err := (&tradeFlags{amount: "1.25"}).sizing()
	if err != nil || usePct {
		t.Fatalf("amount sizing: err=%v usePct=%v", err, usePct)
	}
	if amount.String() != "1.25" {
		t.Fatalf("amount = %s, want 1.25", amount)
	}

	_, pct, usePct, err := (&tradeFlags{percentage: "0.5"}).sizing()
	if err != nil || !usePct {
		t.Fatalf("percentage sizing: err=%v usePct=%v", err, usePct)
	}
	if pct.String() != "0.5" {
		t.Fatalf("pct = %s, want 0.5", pct)
	}
}

func TestExplicitNonceFlag(t *testing.T) {
	if (&tradeFlags{nonce: -1}).explicitNonce() != nil {
		t.Fatal("unset nonce flag should map to nil")
	}
	got := (&tradeFlags{nonce: 42}).explicitNonce()
	if got == nil || *got != 42 {
		t.Fatalf("nonce = %v, want 42", got)
	}
}
