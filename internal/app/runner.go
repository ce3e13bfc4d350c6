// Package app wires the lending client into the aavectl command tree.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveclient/internal/aave"
	"aaveclient/internal/config"
	clierr "aaveclient/internal/errors"
	"aaveclient/internal/store"
	"aaveclient/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type globalFlags struct {
	configPath    string
	mainnetRPCURL string
	goerliRPCURL  string
	wallet        string
	keystorePath  string
	gasStrategy   string
	verbose       bool
}

type runtimeState struct {
	runner   *Runner
	flags    globalFlags
	settings config.Settings
	log      *zap.Logger

	// clientFactory is replaced in tests to avoid dialing a live endpoint.
	clientFactory func(ctx context.Context) (*aave.Client, error)
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if state.log != nil {
		_ = state.log.Sync()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintf(r.stderr, "error: %v\n", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Lending protocol client for deposits, borrows, and account queries",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "help", "version":
				return nil
			}
			settings, err := config.Load(config.Options{
				ConfigPath:    s.flags.configPath,
				MainnetRPCURL: s.flags.mainnetRPCURL,
				GoerliRPCURL:  s.flags.goerliRPCURL,
				WalletAddress: s.flags.wallet,
				KeystorePath:  s.flags.keystorePath,
				GasStrategy:   s.flags.gasStrategy,
			})
			if err != nil {
				return err
			}
			s.settings = settings
			if s.log == nil {
				log, err := newLogger(s.flags.verbose)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "build logger", err)
				}
				s.log = log
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.mainnetRPCURL, "mainnet-rpc-url", "", "Mainnet JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.goerliRPCURL, "goerli-rpc-url", "", "Goerli JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.wallet, "wallet", "", "Wallet address")
	cmd.PersistentFlags().StringVar(&s.flags.keystorePath, "keystore", "", "Path to an encrypted keystore file (password via AAVE_KEYSTORE_PASSWORD)")
	cmd.PersistentFlags().StringVar(&s.flags.gasStrategy, "gas-strategy", "", "Gas strategy (fast|medium|slow|glacial)")
	cmd.PersistentFlags().BoolVar(&s.flags.verbose, "verbose", false, "Log progress detail to stderr")

	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newAccountCommand())
	cmd.AddCommand(s.newBalancesCommand())
	cmd.AddCommand(s.newPriceCommand())
	cmd.AddCommand(s.newReserveCommand())
	cmd.AddCommand(s.newWrapCommand())
	cmd.AddCommand(s.newDepositCommand())
	cmd.AddCommand(s.newWithdrawCommand())
	cmd.AddCommand(s.newBorrowCommand())
	cmd.AddCommand(s.newRepayCommand())
	cmd.AddCommand(s.newApproveCommand())
	cmd.AddCommand(s.newABICommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// newClient dials the active network and loads the reserve registry.
func (s *runtimeState) newClient(ctx context.Context) (*aave.Client, error) {
	if s.clientFactory != nil {
		return s.clientFactory(ctx)
	}
	client, err := aave.New(ctx, s.settings, s.log)
	if err != nil {
		return nil, err
	}
	if err := client.PopulateTokens(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *runtimeState) openStore() (*store.Store, error) {
	return store.Open(s.settings.TradeStorePath, s.settings.TradeLockPath)
}

// saveReceipt records a confirmed trade; persistence failures must not mask
// an operation that already succeeded on-chain, so they only warn.
func (s *runtimeState) saveReceipt(receipt *aave.TradeReceipt) {
	st, err := s.openStore()
	if err != nil {
		s.log.Warn("trade store unavailable, receipt not persisted", zap.Error(err))
		return
	}
	defer func() { _ = st.Close() }()
	if err := st.Save(receipt); err != nil {
		s.log.Warn("could not persist trade receipt", zap.Error(err))
	}
}

func (s *runtimeState) emit(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode output", err)
	}
	_, _ = fmt.Fprintln(s.runner.stdout, string(buf))
	return nil
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"invalid argument",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
