package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/logger"
	"github.com/0xmhha/contractforge/pkg/api/graphql"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/storage"
)

// newContractsCmd groups the offline commands that read the configured store
// without contacting the chain or the generator
func newContractsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Inspect the contract store",
	}
	cmd.AddCommand(
		newContractsListCmd(opts),
		newContractsOutstandingCmd(opts),
		newContractsStatsCmd(opts),
		newContractsQueryCmd(opts),
	)
	return cmd
}

// withStore loads config, opens the store and hands both to fn
func withStore(ctx context.Context, opts *globalOpts, fn func(store storage.Storage, log *zap.Logger) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close store", zap.Error(err))
		}
	}()
	return fn(store, log)
}

func newContractsListCmd(opts *globalOpts) *cobra.Command {
	var (
		search      string
		newestFirst bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployed contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(store storage.Storage, _ *zap.Logger) error {
				contracts, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list contracts: %w", err)
				}
				if search = strings.TrimSpace(search); search != "" {
					contracts = models.Filter(contracts, search)
				}
				if newestFirst {
					contracts = models.NewestFirst(contracts)
				}
				if contracts == nil {
					contracts = []*models.Contract{}
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, contracts)
				}
				return printContracts(out, contracts)
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "q", "", "filter by name, goal or address")
	cmd.Flags().BoolVar(&newestFirst, "desc", false, "newest first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newContractsOutstandingCmd(opts *globalOpts) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "outstanding [address]",
		Short: "List unpaid payment functions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var address string
			if len(args) == 1 {
				address = args[0]
			}
			return withStore(cmd.Context(), opts, func(store storage.Storage, log *zap.Logger) error {
				ledger := payments.NewService(store, payments.Config{Logger: log})
				summary, err := ledger.Outstanding(cmd.Context(), address)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, summary)
				}
				return printOutstanding(out, summary)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newContractsStatsCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the contract store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(store storage.Storage, _ *zap.Logger) error {
				contracts, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list contracts: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), models.Summarize(contracts))
			})
		},
	}
}

func newContractsQueryCmd(opts *globalOpts) *cobra.Command {
	var variables string

	cmd := &cobra.Command{
		Use:   "query <graphql>",
		Short: "Run a GraphQL query against the store",
		Example: `  contractforge contracts query '{ stats { totalContracts activeContracts } }'
  contractforge contracts query 'query($a: String!) { contract(address: $a) { name } }' --vars '{"a":"0x..."}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var vars map[string]interface{}
			if variables != "" {
				if err := json.Unmarshal([]byte(variables), &vars); err != nil {
					return fmt.Errorf("invalid --vars: %w", err)
				}
			}
			return withStore(cmd.Context(), opts, func(store storage.Storage, log *zap.Logger) error {
				ledger := payments.NewService(store, payments.Config{Logger: log})
				h, err := graphql.NewHandler(store, ledger, false, log)
				if err != nil {
					return err
				}
				result := h.ExecuteQuery(cmd.Context(), args[0], vars)
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if result.HasErrors() {
					return fmt.Errorf("query failed: %v", result.Errors[0].Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&variables, "vars", "", "query variables as a JSON object")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printContracts(w io.Writer, contracts []*models.Contract) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tSTATUS\tDEPLOYED\tPAID")
	for _, c := range contracts {
		paid := 0
		for _, pf := range c.Metadata.PaymentFunctions {
			if pf.Paid {
				paid++
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\n",
			c.ID, c.Name, c.Address, c.Status,
			c.DeployedAt.UTC().Format("2006-01-02 15:04:05"),
			paid, len(c.Metadata.PaymentFunctions))
	}
	return tw.Flush()
}

func printOutstanding(w io.Writer, s *payments.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRACT\tADDRESS\tFUNCTION\tAMOUNT\tRECIPIENT")
	for _, o := range s.Obligations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.ContractName, o.ContractAddress, o.FunctionName, o.Amount, o.Recipient)
	}
	fmt.Fprintf(tw, "\n%d outstanding, total %s ether\n", s.Count, s.TotalEther)
	return tw.Flush()
}
