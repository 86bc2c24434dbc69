package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dombatch "github.com/kailas-cloud/escomatch/internal/domain/batch"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
	logpkg "github.com/kailas-cloud/escomatch/internal/logger"
	"github.com/kailas-cloud/escomatch/internal/repository/fixtures"
	"github.com/kailas-cloud/escomatch/internal/repository/matchstore"
	batchuc "github.com/kailas-cloud/escomatch/internal/usecase/batch"
)

func newMatchCmd(c *cli) *cobra.Command {
	var (
		input         string
		fromWarehouse bool
		output        string
		noStore       bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a batch of postings and persist the results",
		Long: "Matches every posting from a JSON Lines file (--input) or the warehouse postings table " +
			"(--from-warehouse). Results go to the match store, to the warehouse when " +
			"warehouse.write_matches is set, and to --output as JSON Lines. " +
			"Postings skipped on embedding timeouts are listed for retry.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (input == "") == !fromWarehouse {
				return errors.New("exactly one of --input or --from-warehouse is required")
			}
			ctx := logpkg.ContextWithLogger(cmd.Context(), c.logger)

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			ch, wh, err := c.openWarehouse(ctx)
			if err != nil {
				return err
			}
			if ch != nil {
				defer func() { _ = ch.Close() }()
			}

			var postings []posting.Posting
			if fromWarehouse {
				if wh == nil {
					return errors.New("--from-warehouse needs warehouse.addr")
				}
				if postings, err = wh.Postings(ctx); err != nil {
					return err
				}
			} else {
				src, err := fixtures.OpenPostings(input)
				if err != nil {
					return err
				}
				postings = src.All()
			}

			deps, err := c.openMatcher(ctx, store)
			if err != nil {
				return err
			}

			var sinks []batchuc.Sink
			if !noStore {
				sinks = append(sinks, matchstore.New(store))
			}
			if wh != nil && c.cfg.Warehouse.WriteMatches {
				if err := wh.EnsureSchema(ctx); err != nil {
					return err
				}
				sinks = append(sinks, wh)
			}
			if output != "" {
				w, closeOut, err := openOutput(output)
				if err != nil {
					return err
				}
				defer func() { _ = closeOut() }()
				sinks = append(sinks, w)
			}

			sum := batchuc.New(deps.matcher, sinks...).
				WithWorkers(c.cfg.Matching.Workers).
				Run(ctx, postings)

			if err := writeSummary(cmd.ErrOrStderr(), sum); err != nil {
				return err
			}
			if sum.Failed > 0 {
				c.logger.Error("Batch finished with failures", zap.Int("failed", sum.Failed))
				return fmt.Errorf("%d of %d postings failed", sum.Failed, len(sum.Results))
			}
			return ctx.Err()
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "postings JSON Lines file")
	cmd.Flags().BoolVar(&fromWarehouse, "from-warehouse", false, "read postings from the warehouse table")
	cmd.Flags().StringVarP(&output, "output", "o", "", `also write results as JSON Lines to this file ("-" for stdout)`)
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not write results to the match store")
	return cmd
}

func writeSummary(w io.Writer, sum batchuc.Summary) error {
	if _, err := fmt.Fprintf(w, "run %s (%s): %d ok, %d skipped, %d failed\n",
		sum.RunID, sum.MatchingVersion, sum.OK, sum.Skipped, sum.Failed); err != nil {
		return err
	}
	for _, st := range []dommatch.Status{
		dommatch.StatusConfirmed, dommatch.StatusNeedsReview, dommatch.StatusRejected, dommatch.StatusPending,
	} {
		if n := sum.ByStatus[st]; n > 0 {
			if _, err := fmt.Fprintf(w, "status\t%s\t%d\n", st, n); err != nil {
				return err
			}
		}
	}
	for _, id := range sum.RetryIDs() {
		if _, err := fmt.Fprintf(w, "retry\t%s\n", id); err != nil {
			return err
		}
	}
	for _, r := range sum.Results {
		if r.Outcome == dombatch.OutcomeFailed {
			if _, err := fmt.Fprintf(w, "error\t%s\t%v\n", r.PostingID, r.Err); err != nil {
				return err
			}
		}
	}
	return nil
}
