package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/kilianp07/bloodlift/infra/mqtt"
	"github.com/kilianp07/bloodlift/infra/simlink"
)

var simInterval time.Duration

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated vehicle behind the MQTT link",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "telemetry publish interval")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mc := cfg.Link.MQTT
	mc.SetDefaults()
	mc.ClientID += "-sim"
	mc.LWTTopic = ""
	opts, err := mqtt.NewClientOptions(mc)
	if err != nil {
		return err
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer cli.Disconnect(250)

	b := simlink.NewBridge(simlink.New(cfg.Link.Sim), cli, mc.TopicPrefix, mc.VehicleID, simInterval)
	fmt.Fprintf(cmd.OutOrStdout(), "simulating %s on %s\n", mc.VehicleID, mc.Broker)
	return b.Run(ctx)
}
