package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config defines the connection parameters of the vehicle link and the
// notifier.
type Config struct {
	Broker     string          `json:"broker" koanf:"broker"`
	ClientID   string          `json:"client_id" koanf:"client_id"`
	Username   string          `json:"username" koanf:"username"`
	Password   string          `json:"password" koanf:"password"`
	UseTLS     bool            `json:"use_tls" koanf:"use_tls"`
	ClientCert string          `json:"client_cert" koanf:"client_cert"`
	ClientKey  string          `json:"client_key" koanf:"client_key"`
	CABundle   string          `json:"ca_bundle" koanf:"ca_bundle"`
	AuthMethod string          `json:"auth_method" koanf:"auth_method"`
	QoS        map[string]byte `json:"qos" koanf:"qos"`
	LWTTopic   string          `json:"lwt_topic" koanf:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload" koanf:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos" koanf:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain" koanf:"lwt_retain"`
	MaxRetries int             `json:"max_retries" koanf:"max_retries"`
	BackoffMS  int             `json:"backoff_ms" koanf:"backoff_ms"`

	// VehicleID and TopicPrefix build the vehicle topics:
	// <prefix>/<vehicle>/telemetry/<KIND>, <prefix>/<vehicle>/command and
	// <prefix>/<vehicle>/ack.
	VehicleID   string `json:"vehicle_id" koanf:"vehicle_id"`
	TopicPrefix string `json:"topic_prefix" koanf:"topic_prefix"`
	// HeartbeatTimeout marks the link down when no heartbeat arrived for
	// that long. Zero only relies on the broker connection state.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" koanf:"heartbeat_timeout"`

	TLSConfig *tls.Config `json:"-" koanf:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "bloodlift"
	}
	if c.VehicleID == "" {
		c.VehicleID = "drone-1"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "bloodlift"
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

func (c Config) qos(name string) byte {
	if q, ok := c.QoS[name]; ok {
		return q
	}
	return 0
}

func (c Config) vehicleTopic(parts ...string) string {
	return strings.Join(append([]string{strings.TrimSuffix(c.TopicPrefix, "/"), c.VehicleID}, parts...), "/")
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
