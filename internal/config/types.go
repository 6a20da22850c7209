package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full relay configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Queue     QueueConfig     `json:"queue"`
	Engine    EngineConfig    `json:"engine"`
	Transport TransportConfig `json:"transport"`
	Audit     *AuditConfig    `json:"audit,omitempty"`
	Health    HealthConfig    `json:"health"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig selects the backing store shared by the queue and the
// address directory.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart (tests, local runs)
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// QueueConfig describes the queue hierarchy the engine subscribes to.
//
// Topology values:
//   - "flat":   {root}/{recipientId}/{recordId}; branch key is the recipient.
//   - "tenant": {root}/{tenantId}/notifications/{recipientId}/{recordId};
//     the record payload's uid names the recipient.
type QueueConfig struct {
	Topology string `json:"topology,omitempty"`
	Root     string `json:"root,omitempty"`
}

// EngineConfig tunes the dispatch engine.
//
// Defaults (when fields are omitted/zero):
//   - fanout_parallel: 4
//   - send_timeout: "10s"
//   - rate_per_sec: 25
//   - branch_buffer: 64
//   - enumerate_spec: "" (sweep disabled; live feed only)
type EngineConfig struct {
	FanoutParallel int    `json:"fanout_parallel,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	BranchBuffer   int    `json:"branch_buffer,omitempty"`

	// EnumerateSpec is a cron expression for the periodic branch
	// re-enumeration sweep. The sweep may re-announce branches the live
	// feed already delivered; the engine dedups.
	EnumerateSpec string `json:"enumerate_spec,omitempty"`
}

// TransportConfig selects the push transport.
//
// Driver values:
//   - "telegram": address tokens are chat IDs
//   - "webhook":  address tokens are URLs
type TransportConfig struct {
	Driver       string         `json:"driver,omitempty"`
	DefaultTitle string         `json:"default_title,omitempty"`
	Telegram     TelegramConfig `json:"telegram,omitempty"`
	Webhook      WebhookConfig  `json:"webhook,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
}

type WebhookConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

// AuditConfig controls the optional delivery audit trail.
//
// Example:
//
//	"audit": { "driver": "file", "path": "./relay_audit" }
type AuditConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
}

// Validate rejects configs the relay cannot start with.
// Defaults for omitted fields are applied by the consuming components.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(c.Queue.Topology)) {
	case "", "flat", "tenant":
	default:
		return fmt.Errorf("queue.topology: unknown topology %q", c.Queue.Topology)
	}

	switch strings.ToLower(strings.TrimSpace(c.Transport.Driver)) {
	case "telegram":
		if strings.TrimSpace(c.Transport.Telegram.Token) == "" {
			return errors.New("transport.telegram.token is required")
		}
	case "", "webhook":
	default:
		return fmt.Errorf("transport.driver: unknown driver %q", c.Transport.Driver)
	}

	for path, raw := range map[string]string{
		"store.busy_timeout":        c.Store.BusyTimeout,
		"engine.send_timeout":       c.Engine.SendTimeout,
		"transport.webhook.timeout": c.Transport.Webhook.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
