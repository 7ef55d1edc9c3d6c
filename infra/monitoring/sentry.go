// Package monitoring provides the Sentry implementation of the core monitor.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/bloodlift/core/monitoring"
)

// Config holds Sentry settings. An empty DSN disables reporting.
type Config struct {
	DSN              string  `json:"dsn" koanf:"dsn"`
	Environment      string  `json:"environment" koanf:"environment"`
	Release          string  `json:"release" koanf:"release"`
	TracesSampleRate float64 `json:"traces_sample_rate" koanf:"traces_sample_rate"`
}

// NewSentryMonitor initializes a Sentry client using the provided
// configuration and returns a Monitor implementation.
func NewSentryMonitor(cfg Config) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		s.hub.CaptureException(err)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

// CapturePanic reports r and flushes so the event survives a crash.
func (s *sentryMonitor) CapturePanic(r any, tags map[string]string) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelFatal)
		s.hub.Recover(r)
	})
	s.hub.Flush(2 * time.Second)
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
