package missionlog

import "fmt"

// Config selects and configures the mission log backend.
type Config struct {
	Backend  string         `json:"backend" koanf:"backend"`
	Path     string         `json:"path" koanf:"path"`
	Rotation RotationConfig `json:"rotation" koanf:"rotation"`
}

// Open returns the configured store. An empty backend disables logging.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return NopStore{}, nil
	case "jsonl":
		return NewJSONLStore(cfg.Path, cfg.Rotation)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown mission log backend %q", cfg.Backend)
	}
}
