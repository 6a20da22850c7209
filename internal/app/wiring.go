package app

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pushrelay/internal/audit"
	"pushrelay/internal/config"
	"pushrelay/internal/directory"
	"pushrelay/internal/dispatch"
	"pushrelay/internal/health"
	"pushrelay/internal/queue"
	"pushrelay/internal/transport"
	"pushrelay/internal/transport/telegram"
	"pushrelay/internal/transport/webhook"
	logx "pushrelay/pkg/logx"
)

// openStore builds the queue store. The sqlite driver also exposes its
// database handle so the directory and audit trail can share it.
func openStore(cfg *config.Config, log logx.Logger) (queue.Store, *sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		st, err := queue.OpenSQLite(queue.Config{
			Path:        cfg.Store.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "store")))
		if err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	case "memory":
		return queue.NewMemStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("store.driver: unknown driver %q", cfg.Store.Driver)
	}
}

func openDirectory(db *sql.DB) (directory.Directory, error) {
	if db == nil {
		return directory.NewMemDirectory(), nil
	}
	return directory.NewSQLite(db)
}

func buildTransport(cfg *config.Config, log logx.Logger) (transport.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Transport.Driver))
	switch driver {
	case "telegram":
		return telegram.New(telegram.Config{
			Token: cfg.Transport.Telegram.Token,
		}, log.With(logx.String("comp", "telegram")))
	case "", "webhook":
		timeout, err := config.ParseDurationField("transport.webhook.timeout", cfg.Transport.Webhook.Timeout)
		if err != nil {
			return nil, err
		}
		return webhook.New(webhook.Config{
			Timeout: timeout,
		}, log.With(logx.String("comp", "webhook"))), nil
	default:
		return nil, fmt.Errorf("transport.driver: unknown driver %q", cfg.Transport.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (dispatch.Config, error) {
	topo, err := queue.ParseTopology(cfg.Queue.Topology)
	if err != nil {
		return dispatch.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("engine.send_timeout", cfg.Engine.SendTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Topology:       topo,
		Root:           cfg.Queue.Root,
		FanoutParallel: cfg.Engine.FanoutParallel,
		SendTimeout:    sendTimeout,
		RatePerSec:     cfg.Engine.RatePerSec,
		BranchBuffer:   cfg.Engine.BranchBuffer,
		EnumerateSpec:  cfg.Engine.EnumerateSpec,
		DefaultTitle:   cfg.Transport.DefaultTitle,
	}, nil
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{
		Enabled:     cfg.Health.Enabled,
		Addr:        cfg.Health.Addr,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 30 * time.Second,
	}
}

func mapAuditConfig(cfg *config.Config) audit.Config {
	if cfg.Audit == nil {
		return audit.Config{}
	}
	return audit.Config{Driver: cfg.Audit.Driver, Path: cfg.Audit.Path}
}

func mapLogxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
