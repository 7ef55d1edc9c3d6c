package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/bloodlift/core/metrics"
	"github.com/kilianp07/bloodlift/core/missionlog"
	"github.com/kilianp07/bloodlift/core/scheduler"
	"github.com/kilianp07/bloodlift/infra/monitoring"
	"github.com/kilianp07/bloodlift/infra/mqtt"
)

type Config struct {
	Link       LinkConfig        `json:"link"`
	Telemetry  TelemetryConfig   `json:"telemetry"`
	Safety     SafetyConfig      `json:"safety"`
	Scheduler  scheduler.Config  `json:"scheduler"`
	Dispatch   DispatchConfig    `json:"dispatch"`
	Store      StoreConfig       `json:"store"`
	MissionLog missionlog.Config `json:"mission_log"`
	Metrics    metrics.Config    `json:"metrics"`
	HTTP       HTTPConfig        `json:"http"`
	Notify     mqtt.NotifyConfig `json:"notify"`
	Sentry     monitoring.Config `json:"sentry"`
}

// Default returns a configuration that runs against the simulated vehicle
// with every limit at its standard value.
func Default() Config {
	cfg := Config{
		Link:      DefaultLinkConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Safety:    DefaultSafetyConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Dispatch:  DefaultDispatchConfig(),
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills the string and address fields left empty.
func (c *Config) SetDefaults() {
	c.Link.SetDefaults()
	c.Store.SetDefaults()
	c.HTTP.SetDefaults()
	if c.MissionLog.Backend == "" {
		c.MissionLog.Backend = "jsonl"
	}
	if c.MissionLog.Path == "" {
		c.MissionLog.Path = "missions.log"
	}
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("link", c.Link.Validate())
	add("telemetry", c.Telemetry.Validate())
	add("safety", c.Safety.Validate())
	add("scheduler", c.Scheduler.Validate())
	add("dispatch", c.Dispatch.Validate())
	add("store", c.Store.Validate())
	add("http", c.HTTP.Validate())
	switch c.MissionLog.Backend {
	case "jsonl", "sqlite", "none":
	default:
		add("mission_log", fmt.Errorf("unknown backend %s", c.MissionLog.Backend))
	}
	return errors.Join(errs...)
}

// Load reads path on top of Default, applies K_ environment overrides
// (K_SAFETY__MAX_WIND_SPEED=30) and validates the result. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
