package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bloodlift/core/scheduler"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/infra/sqlite"
	"github.com/kilianp07/bloodlift/pkg/export"
)

var queueFormat string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Print the mission queue as seen from the home location",
	RunE:  runQueue,
}

func init() {
	queueCmd.Flags().StringVarP(&queueFormat, "format", "f", "table", "output format: table, json or csv")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
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
	reqs, err := store.ListPendingRequests(ctx)
	if err != nil {
		return err
	}
	inv, err := store.ListInventory(ctx)
	if err != nil {
		return err
	}
	hs, err := store.ListHospitals(ctx)
	if err != nil {
		return err
	}
	home := cfg.Dispatch.Home
	queue := scheduler.New(cfg.Scheduler, logger.New("queue")).Queue(reqs, inv, scheduler.IndexHospitals(hs), &home)

	if queueFormat != "table" {
		return export.Write(cmd.OutOrStdout(), export.Format(queueFormat), queue)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tREQUEST\tBLOOD\tURGENCY\tFROM\tTO\tKM")
	for _, c := range queue {
		fmt.Fprintf(w, "%.2f\t%d\t%s\t%s\t%s\t%s\t%.2f\n",
			c.PriorityScore, c.Request.ID, c.Request.BloodType, c.Request.Urgency,
			c.Source.Name, c.Destination.Name, c.TotalDistance)
	}
	return w.Flush()
}
