package mqtt

import (
	"context"
	"encoding/json"

	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

// NotifyConfig maps event types to MQTT topics. Unmapped events are
// published under <prefix>/<vehicle>/events/<type>.
type NotifyConfig struct {
	Enabled bool              `json:"enabled" koanf:"enabled"`
	Retain  bool              `json:"retain" koanf:"retain"`
	Topics  map[string]string `json:"topics" koanf:"topics"`
}

// Notifier re-publishes bus events to MQTT observers.
type Notifier struct {
	cfg    Config
	notify NotifyConfig
	cli    pahoClient
	log    logger.Logger
}

// NewNotifier connects a dedicated client for notifications.
func NewNotifier(cfg Config, notify NotifyConfig) (*Notifier, error) {
	cfg.SetDefaults()
	cfg.ClientID += "-notify"
	cfg.LWTTopic = ""
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Notifier{cfg: cfg, notify: notify, cli: c, log: logger.New("mqtt_notifier")}, nil
}

// Topic returns the topic an event type is published on.
func (n *Notifier) Topic(eventType string) string {
	if t, ok := n.notify.Topics[eventType]; ok && t != "" {
		return t
	}
	return n.cfg.vehicleTopic("events", eventType)
}

// Publish sends a single event.
func (n *Notifier) Publish(ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := n.cli.Publish(n.Topic(ev.Type()), n.cfg.qos("notify"), n.notify.Retain, payload)
	token.Wait()
	return token.Error()
}

// Run forwards bus events until ctx is done or the bus is closed.
func (n *Notifier) Run(ctx context.Context, bus *eventbus.TypedBus[events.Event]) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			n.Close()
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := n.Publish(ev); err != nil {
				n.log.Warnf("notify %s: %v", ev.Type(), err)
			}
		}
	}
}

// Close disconnects the notifier client.
func (n *Notifier) Close() {
	if n.cli != nil && n.cli.IsConnected() {
		n.cli.Disconnect(250)
	}
}
