// path: services.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"civicpulse/config"
	"civicpulse/database"
	"civicpulse/evidence"
	"civicpulse/location"
	"civicpulse/logging"
	"civicpulse/oracle"
	"civicpulse/reports"
	"civicpulse/rewards"
	"civicpulse/saga"
)

// services is everything the commands share, built from config.
type services struct {
	cfg      *config.Config
	reports  reports.Repository
	ledger   rewards.Ledger
	evidence evidence.Store
	locator  *location.Provider
	saga     *saga.Saga
	closers  []func(context.Context) error
}

func (s *services) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	s := &services{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close(context.Background())
		}
	}()

	if cfg.ReportBackend == "mongo" || cfg.LedgerBackend == "mongo" {
		if err := database.Connect(ctx); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, database.Disconnect)
	}

	switch cfg.ReportBackend {
	case "mongo":
		s.reports = reports.NewMongoRepository(database.Col(database.Reports))
	case "postgres", "sqlite":
		db, err := database.OpenSQL(ctx, cfg.ReportBackend, cfg.SQLDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		repo := reports.NewSQLRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		s.reports = repo
	case "memory":
		s.reports = reports.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unsupported report backend %q", cfg.ReportBackend)
	}

	switch cfg.LedgerBackend {
	case "mongo":
		s.ledger = rewards.NewMongoLedger(database.Col(database.Rewards))
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		s.ledger = rewards.NewRedisLedger(client)
	case "memory":
		s.ledger = rewards.NewMemoryLedger()
	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", cfg.LedgerBackend)
	}

	store, err := evidence.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("evidence store: %w", err)
	}
	s.evidence = store
	if c, isCloser := store.(interface{ Close() error }); isCloser {
		s.closers = append(s.closers, func(context.Context) error { return c.Close() })
	}

	var geocoder location.Geocoder
	if cfg.GeocoderKey != "" {
		geocoder = location.NewOpenCage(cfg.GeocoderURL, cfg.GeocoderKey, &http.Client{})
	}
	s.locator = location.NewProvider(geocoder, location.PositionOptions{
		HighAccuracy: true,
		Timeout:      cfg.LocationTimeout,
		MaximumAge:   cfg.LocationMaxAge,
	}, cfg.GeocoderTimeout)

	policy, err := saga.LoadPolicy(cfg.VerificationPolicyFile)
	if err != nil {
		return nil, err
	}

	verifier := oracle.NewClient(oracle.Config{
		URL:           cfg.OracleURL,
		Timeout:       cfg.OracleTimeout,
		RPS:           cfg.OracleRPS,
		ConfThreshold: cfg.OracleConfThreshold,
	}, &http.Client{})

	s.saga = saga.New(saga.Deps{
		Locator:  s.locator,
		Evidence: s.evidence,
		Verifier: verifier,
		Reports:  s.reports,
		Ledger:   s.ledger,
	}, saga.Options{
		Policy:          policy,
		OracleAttempts:  cfg.OracleAttempts,
		PersistAttempts: cfg.PersistAttempts,
		CreditAttempts:  cfg.CreditAttempts,
	})

	logging.New("main").Info("services ready",
		"reports", cfg.ReportBackend, "ledger", cfg.LedgerBackend, "evidence", cfg.EvidenceBackend)
	ok = true
	return s, nil
}

// loadConfig reads config and sets up logging; every command starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	return cfg, nil
}
