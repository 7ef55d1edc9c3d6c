package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/bloodlift/core/telemetry"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// companion plays the vehicle side: it emits heartbeats and battery status
// and records the commands it receives.
func companion(t *testing.T, broker string) (paho.Client, func() []command) {
	t.Helper()
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("companion"))
	if token := cli.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		t.Skipf("companion connect: %v", token.Error())
	}
	var mu sync.Mutex
	var got []command
	token := cli.Subscribe("bloodlift/drone-1/command", 1, func(c paho.Client, m paho.Message) {
		var cmd command
		if json.Unmarshal(m.Payload(), &cmd) != nil {
			return
		}
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
		ack, _ := json.Marshal(map[string]string{"command_id": cmd.CommandID, "result": "accepted"})
		c.Publish("bloodlift/drone-1/ack", 1, false, ack)
	})
	token.Wait()
	require.NoError(t, token.Error())
	return cli, func() []command {
		mu.Lock()
		defer mu.Unlock()
		return append([]command(nil), got...)
	}
}

func TestVehicleLinkWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	comp, commands := companion(t, broker)
	defer comp.Disconnect(100)

	link, err := NewVehicleLink(Config{Broker: broker, QoS: map[string]byte{"command": 1, "telemetry": 1}})
	require.NoError(t, err)
	defer link.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				comp.Publish("bloodlift/drone-1/telemetry/HEARTBEAT", 0, false, []byte(`{"armed":false,"mode":"GUIDED"}`))
				comp.Publish("bloodlift/drone-1/telemetry/SYS_STATUS", 0, false, []byte(`{"battery_remaining":72,"voltage":12.0}`))
			}
		}
	}()

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, link.WaitHeartbeat(wctx))

	acq := telemetry.NewAcquirer(link, telemetry.DefaultConfig())
	battery := acq.Battery(ctx)
	require.True(t, battery.Valid)
	assert.Equal(t, 72.0, battery.Value)

	require.NoError(t, link.SetMode(ctx, "GUIDED"))
	require.NoError(t, link.Arm(ctx))
	require.Eventually(t, func() bool { return len(commands()) == 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "set_mode", commands()[0].Type)
}
