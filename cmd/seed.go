package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bloodlift/infra/sqlite"
)

var seedKeep bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the record store and load the sample hospitals",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedKeep, "keep", false, "keep existing rows")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if !seedKeep {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	hs, err := sqlite.Seed(ctx, store)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, h := range hs {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%.4f,%.4f\n", h.ID, h.Name, h.Latitude, h.Longitude)
	}
	return nil
}
