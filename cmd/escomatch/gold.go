package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	logpkg "github.com/kailas-cloud/escomatch/internal/logger"
	"github.com/kailas-cloud/escomatch/internal/repository/fixtures"
	"github.com/kailas-cloud/escomatch/internal/repository/goldrun"
	golduc "github.com/kailas-cloud/escomatch/internal/usecase/gold"
)

func newGoldCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gold",
		Short: "Gold-set regression harness",
	}
	cmd.AddCommand(newGoldEvalCmd(c), newGoldAddCmd(c), newGoldRunsCmd(c))
	return cmd
}

func newGoldEvalCmd(c *cli) *cobra.Command {
	var (
		casesPath        string
		input            string
		fromWarehouse    bool
		against          string
		noSave           bool
		mode             string
		failOnRegression bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run every gold case through the matcher and report precision",
		Long: "Matches the posting of every gold case, prints precision with breakdowns by error type, " +
			"method and rule, and compares against the prior run (the latest stored one, or --against " +
			"<matching_version>). The new run is stored unless --no-save is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logpkg.ContextWithLogger(cmd.Context(), c.logger)
			if casesPath == "" {
				casesPath = c.cfg.Gold.Cases
			}
			if input == "" {
				input = c.cfg.Gold.Postings
			}
			if mode == "" {
				mode = c.cfg.Gold.Mode
			}
			m, err := domgold.ParseMode(mode)
			if err != nil {
				return err
			}

			cases, err := fixtures.LoadCases(casesPath)
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				return fmt.Errorf("no gold cases in %s", casesPath)
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var postings golduc.PostingSource
			if fromWarehouse {
				ch, wh, err := c.openWarehouse(ctx)
				if err != nil {
					return err
				}
				if wh == nil {
					return errors.New("--from-warehouse needs warehouse.addr")
				}
				defer func() { _ = ch.Close() }()
				postings = wh
			} else {
				if input == "" {
					return errors.New("gold postings file is required (--input or gold.postings)")
				}
				src, err := fixtures.OpenPostings(input)
				if err != nil {
					return err
				}
				postings = src
			}

			deps, err := c.openMatcher(ctx, store)
			if err != nil {
				return err
			}

			report, err := golduc.New(deps.matcher, postings, goldrun.New(store), m, c.logger).
				Evaluate(ctx, cases, golduc.EvalOptions{Against: against, Save: !noSave})
			if err != nil {
				return err
			}
			if err := report.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if failOnRegression && len(report.Regressions) > 0 {
				return fmt.Errorf("%d regression(s) against %s", len(report.Regressions), report.Prior.MatchingVersion)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&casesPath, "cases", "", "gold cases YAML file (default gold.cases)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "postings JSON Lines file (default gold.postings)")
	cmd.Flags().BoolVar(&fromWarehouse, "from-warehouse", false, "look postings up in the warehouse")
	cmd.Flags().StringVar(&against, "against", "", "matching version of the run to compare with (default latest)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store this run")
	cmd.Flags().StringVar(&mode, "mode", "", "evaluation mode: loose or strict (default gold.mode)")
	cmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "exit non-zero when any case regressed")
	return cmd
}

func newGoldRunsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored gold runs by matching version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs := goldrun.New(store)
			versions, err := runs.Versions(ctx)
			if err != nil {
				return err
			}
			latest, err := runs.Latest(ctx)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range versions {
				run, err := runs.ByVersion(ctx, v)
				if err != nil {
					return err
				}
				marker := " "
				if v == latest.MatchingVersion {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\tprecision %.3f (%d/%d)\n", marker, v,
					run.StartedAt.Format("2006-01-02 15:04"), run.Precision(), run.Passed(), len(run.Cases))
			}
			return nil
		},
	}
}

// asker collects the answers of one interactive case.
type asker interface {
	prompt(label, def string, validate func(string) error) (string, error)
	choose(label string, items []string) (string, error)
}

type promptAsker struct{}

func (promptAsker) prompt(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Default: def, Validate: validate}
	return p.Run()
}

func (promptAsker) choose(label string, items []string) (string, error) {
	s := promptui.Select{Label: label, Items: items}
	_, v, err := s.Run()
	return v, err
}

const (
	answerCorrect   = "correct"
	answerIncorrect = "incorrect"
)

func newGoldAddCmd(c *cli) *cobra.Command {
	var (
		casesPath string
		postingID string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Interactively append one reviewed case to the gold set",
		Long:  "Asks for the review of one posting and appends it as a new YAML document. Existing cases are never rewritten.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if casesPath == "" {
				casesPath = c.cfg.Gold.Cases
			}
			gc, err := askCase(cmd.Context(), promptAsker{}, postingID)
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
				return errors.New("aborted, nothing written")
			}
			if err != nil {
				return err
			}
			if err := fixtures.AppendCase(casesPath, gc); err != nil {
				return err
			}
			c.logger.Info("Gold case appended",
				zap.String("file", casesPath),
				zap.String("posting_id", gc.PostingID),
				zap.Bool("expected_correct", gc.ExpectedCorrect),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&casesPath, "cases", "", "gold cases YAML file (default gold.cases)")
	cmd.Flags().StringVar(&postingID, "posting-id", "", "posting under review")
	return cmd
}

// askCase walks the reviewer through one case.
func askCase(ctx context.Context, a asker, postingID string) (domgold.Case, error) {
	var gc domgold.Case
	if err := ctx.Err(); err != nil {
		return gc, err
	}

	id, err := a.prompt("Posting ID", postingID, required)
	if err != nil {
		return gc, err
	}
	gc.PostingID = strings.TrimSpace(id)

	verdict, err := a.choose("Is the current match correct?", []string{answerCorrect, answerIncorrect})
	if err != nil {
		return gc, err
	}
	gc.ExpectedCorrect = verdict == answerCorrect

	if !gc.ExpectedCorrect {
		code, err := a.prompt("Expected ISCO code", "", iscoCode(true))
		if err != nil {
			return gc, err
		}
		gc.ExpectedISCOCode = strings.TrimSpace(code)

		types := make([]string, 0, len(domgold.KnownErrorTypes))
		for _, t := range domgold.KnownErrorTypes {
			types = append(types, string(t))
		}
		et, err := a.choose("Error type", types)
		if err != nil {
			return gc, err
		}
		gc.ErrorType = domgold.ErrorType(et)
	} else {
		ref, err := a.prompt("Reference ISCO code (optional, enables strict mode)", "", iscoCode(false))
		if err != nil {
			return gc, err
		}
		gc.ReferenceISCOCode = strings.TrimSpace(ref)
	}

	comment, err := a.prompt("Reviewer comment (optional)", "", nil)
	if err != nil {
		return gc, err
	}
	gc.ReviewerComment = strings.TrimSpace(comment)

	return gc, gc.Validate()
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func iscoCode(mandatory bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if mandatory {
				return errors.New("required")
			}
			return nil
		}
		if _, err := isco.Parse(s); err != nil {
			return err
		}
		return nil
	}
}
