package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check dictionary and forced-rule targets against the taxonomy",
		Long: "Prints every dictionary entry or forced rule whose target does not resolve in the taxonomy. " +
			"Exits non-zero when any issue exists, which blocks promoting the rule files.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tax, err := c.openTaxonomy()
			if err != nil {
				return err
			}
			layer, err := c.loadRules()
			if err != nil {
				return err
			}

			issues := layer.Validate(tax)
			metrics.DictionaryIssues.Set(float64(len(issues)))

			if err := writeIssues(cmd.OutOrStdout(), issues); err != nil {
				return err
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d rule integrity issue(s): %w", len(issues), domain.ErrDictionaryIntegrity)
			}
			return nil
		},
	}
}

func writeIssues(w io.Writer, issues []domain.DictionaryIntegrityWarning) error {
	if len(issues) == 0 {
		_, err := fmt.Fprintln(w, "rules OK: every target resolves in the taxonomy")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "source\tkey\tlabel\tisco\treason")
	for _, is := range issues {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", is.Source, is.Key, is.Label, is.ISCO, is.Reason)
	}
	return tw.Flush()
}
