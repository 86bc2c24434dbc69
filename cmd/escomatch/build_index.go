package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/taxonomy"
)

func newBuildIndexCmd(c *cli) *cobra.Command {
	var source, out string

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Embed the ESCO taxonomy and write the index snapshot",
		Long: "Loads the taxonomy graph export, embeds every occupation label, label+description text " +
			"and referenced skill label with the configured model, and writes the snapshot directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if source == "" {
				source = c.cfg.Taxonomy.Source
			}
			if out == "" {
				out = c.cfg.Taxonomy.IndexDir
			}

			occs, err := taxonomy.LoadFile(source, taxonomy.LoadOptions{
				Language: c.cfg.Taxonomy.Language,
				Logger:   c.logger,
			})
			if err != nil {
				return err
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			emb, err := c.buildEmbedder(ctx, store, c.cfg.Embedding.DocumentInstruction)
			if err != nil {
				return err
			}

			start := time.Now()
			tax, err := taxonomy.Build(ctx, occs, emb, taxonomy.BuildOptions{
				Model:    c.cfg.Embedding.Model,
				Language: c.cfg.Taxonomy.Language,
				Logger:   c.logger,
			})
			if err != nil {
				return err
			}
			if err := taxonomy.Save(out, tax); err != nil {
				return fmt.Errorf("save index: %w", err)
			}

			c.logger.Info("Index written",
				zap.String("dir", out),
				zap.Int("occupations", tax.Len()),
				zap.Int("dimensions", tax.Dimensions()),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "taxonomy graph export (default taxonomy.source)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "snapshot directory (default taxonomy.index_dir)")
	return cmd
}
