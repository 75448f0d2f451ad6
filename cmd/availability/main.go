package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"calendly/internal/api"
	"calendly/internal/availability"
	"calendly/internal/config"
	"calendly/internal/conflicts"
	"calendly/internal/database"
	"calendly/internal/database/postgres"
	"calendly/internal/events"
	"calendly/internal/google"
	"calendly/internal/health"
	"calendly/internal/ics"
	"calendly/internal/identity"
	"calendly/internal/metrics"
	"calendly/internal/tracing"
)

// store is what the binary needs from either record store.
type store interface {
	availability.Store
	api.Store
	Ping(ctx context.Context) error
	SyncSchedulesFromConfig(ctx context.Context, cfg *config.SchedulesConfig) ([]string, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CALENDLY_CONFIG_PATH"))
	if err != nil {
		bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctxShutdown)
	}()

	st, closeStore, err := openStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open store error")
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	source, err := conflictSource(ctx, cfg, rdb, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("conflict source setup failed")
	}

	opts := []availability.Option{}
	if source != nil {
		opts = append(opts, availability.WithConflictSource(source))
	}
	resolver := availability.NewResolver(st, availability.Config{
		MinLead:         cfg.MinLead(),
		MaxRangeDays:    cfg.Availability.MaxRangeDays,
		FailOpen:        cfg.Availability.FailOpen,
		ConflictTimeout: cfg.ConflictTimeout(),
	}, &logger, opts...)
	cached := availability.NewCachedResolver(resolver, rdb, cfg.CacheTTL(), &logger)

	bus := events.NewEventBus()
	cached.Subscribe(bus)

	if cfg.Kafka.Enabled {
		relay := events.NewKafkaRelay(events.SplitBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, &logger)
		relay.Attach(bus)
		go relay.Run(ctx)
	}

	err = config.WatchSchedules(ctx, cfg.Schedules.Path, cfg.ScheduleWatchInterval(),
		func(sc *config.SchedulesConfig) {
			owners, err := st.SyncSchedulesFromConfig(ctx, sc)
			if err != nil {
				logger.Error().Err(err).Msg("sync schedules error")
			}
			for _, ownerID := range owners {
				_ = bus.Publish(events.Event{Type: events.TypeScheduleUpdated, OwnerID: ownerID, CreatedAt: time.Now().UTC()})
			}
		},
		func(err error) {
			logger.Error().Err(err).Str("path", cfg.Schedules.Path).Msg("schedules reload rejected")
		},
	)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Schedules.Path).Msg("schedules file not loaded; owners are managed through the API only")
	}

	if db, ok := st.(*database.DB); ok && cfg.Backup.Enabled {
		backups := database.NewBackupService(db, database.BackupConfig{
			Enabled:       true,
			Schedule:      cfg.Backup.Schedule,
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		if err := backups.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup scheduler not started")
		}
	}

	checks := []health.Check{{Name: "store", Check: st.Ping}}
	if rdb != nil {
		checks = append(checks, health.Check{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, checks, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.GRPC.Enabled {
		if err := startGRPCServer(ctx, cfg.GRPC.Address, checks, &logger); err != nil {
			logger.Fatal().Err(err).Msg("grpc server error")
		}
	}

	serverOpts := []api.Option{api.WithEventBus(bus)}
	if rdb != nil && cfg.Server.RateLimitPerMinute > 0 {
		limiter := api.NewRateLimiter(rdb, cfg.Server.RateLimitPerMinute, time.Minute, cfg.Server.RateLimitFailOpen)
		serverOpts = append(serverOpts, api.WithRateLimiter(limiter))
	}
	srv := api.NewHTTPServer(api.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}, cached, st, identity.NewService(cfg.APIKeys, logger), logger, serverOpts...)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("address", cfg.Server.Address).Msg("Availability service started")
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
	logger.Info().Msg("Availability service stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", cfg.Tracing.ServiceName).Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store, func(), error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

// conflictSource builds the external calendar sources named in the config, each
// behind the busy-interval cache. It returns nil when none is enabled.
func conflictSource(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) (conflicts.Source, error) {
	var sources conflicts.MultiSource

	if cfg.Google.Enabled {
		g, err := google.NewSource(ctx, google.Config{
			CredentialsFile:   cfg.Google.CredentialsFile,
			RequestsPerSecond: cfg.Google.RequestsPerSecond,
			Calendars:         cfg.Google.Calendars,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, conflicts.NewCachedSource(g, rdb, cfg.BusyCacheTTL()))
	}

	if cfg.ICS.Enabled {
		loc, err := time.LoadLocation(cfg.ICS.FloatingTimezone)
		if err != nil {
			return nil, err
		}
		feeds, err := ics.NewSource(ics.Config{
			Timeout:   cfg.ICSTimeout(),
			Feeds:     cfg.ICS.Feeds,
			Location:  loc,
			CacheSize: cfg.ICS.CacheSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, conflicts.NewCachedSource(feeds, rdb, cfg.BusyCacheTTL()))
	}

	switch len(sources) {
	case 0:
		return nil, nil
	case 1:
		return sources[0], nil
	}
	return sources, nil
}
