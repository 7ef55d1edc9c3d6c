package config

import "fmt"

// StoreConfig locates the record database.
type StoreConfig struct {
	Path string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "bloodlift.db"
	}
}

func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token protects the mission log query when set.
	Token          string   `json:"token"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}
