package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bloodlift/core/telemetry"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/infra/mqtt"
)

var linkTimeout time.Duration

var linkCheckCmd = &cobra.Command{
	Use:   "link-check",
	Short: "Wait for a vehicle heartbeat and print one telemetry poll",
	RunE:  runLinkCheck,
}

func init() {
	linkCheckCmd.Flags().DurationVar(&linkTimeout, "timeout", 10*time.Second, "heartbeat wait")
	rootCmd.AddCommand(linkCheckCmd)
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	link, err := mqtt.NewVehicleLink(cfg.Link.MQTT)
	if err != nil {
		return fmt.Errorf("mqtt link: %w", err)
	}
	defer link.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), linkTimeout)
	defer cancel()
	if err := link.WaitHeartbeat(ctx); err != nil {
		return fmt.Errorf("no heartbeat within %s: %w", linkTimeout, err)
	}

	acq := telemetry.NewAcquirer(link, cfg.Telemetry.Config,
		telemetry.WithLogger(logger.New("link-check")),
		telemetry.WithRetryPolicy(cfg.Telemetry.RetryPolicy()))
	s := acq.Sample(cmd.Context())
	out := cmd.OutOrStdout()
	if s.Battery.Valid {
		fmt.Fprintf(out, "battery:  %.1f%% (%s)\n", s.Battery.Value, s.Battery.Source)
	} else {
		fmt.Fprintf(out, "battery:  unknown (%s)\n", s.Battery.Status)
	}
	if s.Location.Valid {
		l := s.Location.Value
		fmt.Fprintf(out, "position: %.6f,%.6f alt %.1fm heading %.0f\n", l.Lat, l.Lon, l.Alt, l.Heading)
	} else {
		fmt.Fprintf(out, "position: no fix (%s)\n", s.Location.Status)
	}
	fmt.Fprintf(out, "armed:    %t\n", s.Snapshot.Armed)
	fmt.Fprintf(out, "mode:     %s\n", s.Snapshot.Mode)
	return nil
}
