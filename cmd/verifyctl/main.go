// verifyctl inspects a persisted investigation document offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banking/verification-service/internal/events"
	"github.com/banking/verification-service/internal/geo"
	"github.com/banking/verification-service/internal/pkg/logger"
	"github.com/banking/verification-service/internal/reconciliation"
	"github.com/banking/verification-service/internal/store"
)

type options struct {
	file   string
	asJSON bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "verifyctl",
		Short:         "Inspect field verification investigations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "data/verification.json", "persisted investigation document")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(newSummaryCmd(opts), newDiffsCmd(opts))
	return root
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [applicationId]",
		Short: "Show the summary of one investigation, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Context(), opts.file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				summary, err := svc.GetSummary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(out, summary)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "status\t%s\n", summary.OverallStatus)
				fmt.Fprintf(tw, "risk\t%s\n", summary.OverallRisk)
				fmt.Fprintf(tw, "action\t%s\n", summary.RecommendedAction)
				fmt.Fprintf(tw, "fields\t%d/%d completed, %d adjusted, %d blocked\n",
					summary.CompletedFields, summary.TotalFields, summary.AdjustedFields, summary.BlockedFields)
				fmt.Fprintf(tw, "pending required\t%d\n", summary.PendingRequired)
				if summary.PaymentCapacity != nil {
					fmt.Fprintf(tw, "payment capacity\t%.2f\n", *summary.PaymentCapacity)
				}
				return tw.Flush()
			}

			list := svc.ListInvestigations(cmd.Context())
			if opts.asJSON {
				return writeJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "APPLICATION\tSTATUS\tRISK\tACTION\tADJUSTED\tBLOCKED")
			for _, inv := range list {
				s := inv.Summary
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					inv.ApplicationID, s.OverallStatus, s.OverallRisk, s.RecommendedAction, s.AdjustedFields, s.BlockedFields)
			}
			return tw.Flush()
		},
	}
}

func newDiffsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diffs applicationId",
		Short: "List detected differences of an investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Context(), opts.file)
			if err != nil {
				return err
			}
			diffs, err := svc.GetDiffs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, diffs)
			}

			ids := make([]string, 0, len(diffs))
			for id := range diffs {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tDECLARED\tOBSERVED\tDIFF%\tSEVERITY\tAUTO")
			for _, id := range ids {
				d := diffs[id]
				pct := "-"
				if d.Difference != nil {
					pct = fmt.Sprintf("%.2f", *d.Difference)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
					id, d.DeclaredValue.String(), d.ObservedValue.String(), pct, d.Severity, d.AutoDetected)
			}
			return tw.Flush()
		},
	}
}

// openService restores the document read-only. Nothing is flushed back.
func openService(ctx context.Context, path string) (*reconciliation.Service, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	backend, err := store.NewFileBackend(path)
	if err != nil {
		return nil, err
	}
	log := logger.NewNop()
	st := store.New(backend, store.Options{}, log)
	svc := reconciliation.NewService(st, geo.Static(false), events.Noop{}, log, reconciliation.Options{})
	if _, err := svc.Restore(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
