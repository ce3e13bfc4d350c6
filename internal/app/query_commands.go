package app

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "aaveclient/internal/errors"
	"aaveclient/internal/httpx"
	"aaveclient/internal/registry"
)

func (s *runtimeState) newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the reserve tokens available on the active network",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			return s.emit(client.Tokens().List())
		},
	}
}

func (s *runtimeState) newAccountCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the wallet's aggregate collateral, debt, and health factor",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			snapshot, err := client.GetAccountSnapshot(cmd.Context(), !raw)
			if err != nil {
				return err
			}
			return s.emit(snapshot)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Report the currency figures in the contract's integer units")
	return cmd
}

func (s *runtimeState) newBalancesCommand() *cobra.Command {
	var hideEmpty bool
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show the wallet's balance in every reserve token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			balances, err := client.GetAllReserveBalances(cmd.Context(), hideEmpty)
			if err != nil {
				return err
			}
			return s.emit(balances)
		},
	}
	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "Drop zero balances from the output")
	return cmd
}

func (s *runtimeState) newPriceCommand() *cobra.Command {
	var baseArg, quoteArg string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Quote an asset in ETH or in another reserve asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			base, err := client.Tokens().Resolve(baseArg)
			if err != nil {
				return err
			}
			result := struct {
				Base  string `json:"base"`
				Quote string `json:"quote"`
				Price string `json:"price"`
			}{Base: base.Symbol, Quote: "ETH"}

			if quoteArg == "" {
				price, err := client.GetAssetPrice(cmd.Context(), base, nil)
				if err != nil {
					return err
				}
				result.Price = price.String()
				return s.emit(result)
			}

			quote, err := client.Tokens().Resolve(quoteArg)
			if err != nil {
				return err
			}
			price, err := client.GetAssetPrice(cmd.Context(), base, &quote)
			if err != nil {
				return err
			}
			result.Quote = quote.Symbol
			result.Price = price.String()
			return s.emit(result)
		},
	}
	cmd.Flags().StringVar(&baseArg, "base", "", "Asset to price")
	cmd.Flags().StringVar(&quoteArg, "quote", "", "Optional quote asset (defaults to ETH)")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func (s *runtimeState) newReserveCommand() *cobra.Command {
	var assetArg string
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Show the wallet's position detail in one reserve",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			asset, err := client.Tokens().Resolve(assetArg)
			if err != nil {
				return err
			}
			data, err := client.GetUserReserveData(cmd.Context(), asset)
			if err != nil {
				return err
			}
			return s.emit(data)
		},
	}
	cmd.Flags().StringVar(&assetArg, "asset", "", "Reserve token symbol")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func (s *runtimeState) newABICommand() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "abi",
		Short: "Fetch a verified contract ABI from the block explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(address) {
				return clierr.New(clierr.CodeUsage, "--address must be a hex address")
			}
			fetcher := registry.NewABIFetcher(httpx.New(s.settings.HTTPTimeout, s.settings.HTTPRetries))
			doc, err := fetcher.FetchContractABI(cmd.Context(), address)
			if err != nil {
				return err
			}
			return s.emit(doc)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Contract address")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var operation string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past trades recorded in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			trades, err := st.List(operation, limit)
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				return clierr.New(clierr.CodeNotFound, "no recorded trades match the filter")
			}
			return s.emit(trades)
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation (deposit|withdraw|borrow|repay|wrap)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum trades to return")
	return cmd
}
