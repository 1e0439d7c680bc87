package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/currency"
	"github.com/webextended/ga4-tracking/internal/server"
	"github.com/webextended/ga4-tracking/internal/store"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

// app is the wired tracking pipeline shared by serve and preview.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	redis    *redis.Client
	currency *currency.Resolver
	nonces   *tracking.Nonces
	tracker  *tracking.Tracker
	log      *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, store: s, log: log}

	if created, err := s.EnsureDefaults(ctx); err != nil {
		a.Close()
		return nil, err
	} else if created {
		log.Info("tracking settings initialized with defaults")
	}

	guard, err := a.newGuard(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.nonces, err = tracking.NewNonces(cfg.Nonce.Secret, cfg.Nonce.TTL())
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Nonce.Secret == "" {
		log.Warn("no nonce secret configured, nonces will not survive a restart")
	}

	a.currency = currency.NewResolver(cfg.Ecommerce.Currency, cfg.Ecommerce.Currencies)

	endpoint := server.AjaxPath
	if cfg.Server.PublicURL != "" {
		endpoint = cfg.Server.BaseURL() + server.AjaxPath
	}

	a.tracker, err = tracking.New(tracking.Deps{
		Settings:         s,
		Catalog:          s,
		Carts:            s,
		Orders:           s,
		Currency:         a.currency,
		Guard:            guard,
		Nonces:           a.nonces,
		Endpoint:         endpoint,
		Logger:           log,
		ValidatePayloads: cfg.Ajax.ValidatePayload,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newGuard selects the backend holding the purchase tracked flag.
func (a *app) newGuard(ctx context.Context) (tracking.Guard, error) {
	switch a.cfg.Guard.Backend {
	case "sqlite":
		return a.store, nil
	case "memory":
		a.log.Warn("purchase tracked flags are kept in memory and lost on restart")
		return tracking.NewMemoryGuard(), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr: a.cfg.Guard.RedisAddr,
			DB:   a.cfg.Guard.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Guard.RedisAddr, err)
		}
		return tracking.NewRedisGuard(a.redis, a.cfg.Guard.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("invalid guard backend %q: must be sqlite, redis or memory", a.cfg.Guard.Backend)
	}
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
}
