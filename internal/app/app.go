package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"procurement-signals/internal/alerting"
	"procurement-signals/internal/api"
	"procurement-signals/internal/clock"
	"procurement-signals/internal/config"
	"procurement-signals/internal/forecast"
	"procurement-signals/internal/logging"
	"procurement-signals/internal/purchasing"
	"procurement-signals/internal/risk"
	"procurement-signals/internal/scheduler"
	"procurement-signals/internal/service"
	"procurement-signals/internal/snapshot"
	"procurement-signals/internal/storage"
	"procurement-signals/internal/supplychain"
)

const shutdownTimeout = 5 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Clock  clock.Clock
	// Out receives the tables printed by score and show.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Clock: clock.Real{}, Out: os.Stdout}
}

// runtime holds the collaborators of one command invocation.
type runtime struct {
	store   storage.Store
	engine  *alerting.Engine
	desk    *purchasing.Desk
	service *service.Service
	closers []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) build(ctx context.Context) (*runtime, error) {
	rt := &runtime{}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	notifier, closeNotifier := a.newNotifier()
	if closeNotifier != nil {
		rt.closers = append(rt.closers, closeNotifier)
	}

	windows, err := alerting.ParseWindows(a.Config.Alerting.Windows)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.engine = alerting.NewEngine(store, notifier, a.Clock, alerting.Options{
		Windows:       windows,
		RetentionDays: a.Config.Alerting.RetentionDays,
		MaxAlerts:     a.Config.Alerting.MaxAlerts,
	}, a.Logger)

	rt.desk = purchasing.NewDesk(store, a.Clock, a.Logger, purchasing.Options{
		TaxRate:         a.Config.Purchasing.TaxRate,
		Currency:        a.Config.Purchasing.Currency,
		DefaultQuantity: a.Config.Purchasing.DefaultQuantity,
		DeliveryAddress: a.Config.Purchasing.DeliveryAddress,
	})

	source, closeSource, err := a.newSource(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if closeSource != nil {
		rt.closers = append(rt.closers, closeSource)
	}

	rt.service = service.New(source, a.newForecaster(), a.newAnalyzer(), rt.engine, a.Clock, service.Options{
		Horizon:                 a.Config.Forecast.Horizon,
		HistoryDays:             a.Config.Forecast.HistoryDays,
		PriceThresholdPct:       a.Config.Alerting.PriceThresholdPct,
		InventoryThreshold:      a.Config.Alerting.InventoryThreshold,
		RetentionDays:           a.Config.Alerting.RetentionDays,
		PreferredSuppliers:      a.Config.Scoring.PreferredSuppliers,
		NegotiationThresholdPct: a.Config.Scoring.NegotiationThresholdPct,
		Purchasing:              rt.desk,
	}, a.Logger)
	return rt, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	switch a.Config.Storage.Driver {
	case "memory":
		a.Logger.Warn().Msg("storage.driver=memory; alerts are lost on exit")
		return storage.NewMemoryStore(), nil
	case "postgres":
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		store := storage.NewPostgresStore(pool, a.Logger)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return storage.OpenSQLite(ctx, a.Config.Storage.SQLitePath, a.Logger)
	}
}

func (a *App) newNotifier() (alerting.Notifier, func() error) {
	var (
		notifiers alerting.MultiNotifier
		closer    func() error
	)
	for _, ch := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		case "kafka":
			cfg := a.Config.Alerting.Kafka
			kn := alerting.NewKafkaNotifier(alerting.NewKafkaWriter(cfg.Brokers, cfg.Topic), a.Logger)
			notifiers = append(notifiers, kn)
			closer = kn.Close
		}
	}
	switch len(notifiers) {
	case 0:
		return nil, closer
	case 1:
		return notifiers[0], closer
	}
	return notifiers, closer
}

func (a *App) newSource(ctx context.Context) (snapshot.Source, func() error, error) {
	if a.Config.Data.Source != "redis" {
		return snapshot.NewFileSource(a.Config.Data.Path, a.Clock, a.Logger), nil, nil
	}
	client, err := snapshot.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	return snapshot.NewRedisStore(client, a.Config.Redis.KeyPrefix, a.Clock, a.Logger), client.Close, nil
}

func (a *App) newForecaster() forecast.Forecaster {
	linear := forecast.NewLinear()
	if a.Config.Forecast.ServiceURL == "" {
		return linear
	}
	remote := forecast.NewHTTPForecaster(forecast.HTTPOptions{
		BaseURL:   a.Config.Forecast.ServiceURL,
		Timeout:   a.Config.Forecast.RequestTimeout,
		RetryMax:  a.Config.Forecast.RetryMax,
		UserAgent: a.Config.Forecast.UserAgent,
	}, a.Logger)
	return forecast.NewFallback(remote, linear, a.Logger)
}

func (a *App) newAnalyzer() *supplychain.Analyzer {
	cfg := a.Config.Scoring
	var geo risk.GeoRiskSource
	var disruption risk.DisruptionModel = risk.BaselineDisruption{}
	if cfg.GeoRiskMode == "simulated" {
		geo = risk.NewSimulatedGeoRisk(cfg.Seed)
	}
	if cfg.DisruptionMode == "simulated" {
		disruption = risk.NewSimulatedDisruption(cfg.Seed)
	}
	return supplychain.NewAnalyzer(risk.NewScorer(geo), disruption, supplychain.Options{
		BasePrices:           cfg.BasePrices,
		AlternativeThreshold: cfg.AlternativePriceThreshold,
	})
}

// Run executes the long-running refresh service and the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("关闭资源失败")
		}
	}()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Clock, a.Logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx, rt.service.Tick)
	})

	if a.Config.HTTP.Enabled {
		srv := a.newHTTPServer(rt.service)
		g.Go(func() error {
			a.Logger.Info().Str("addr", srv.Addr).Msg("HTTP API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.Logger.Info().Msg("starting procurement signal service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("procurement signal service stopped")
	return nil
}

func (a *App) newHTTPServer(svc *service.Service) *http.Server {
	if a.Config.HTTP.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           api.NewRouter(svc, a.Config.HTTP.AllowedOrigins, a.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ExportOptions hold parameters for exporting a material's price history.
type ExportOptions struct {
	Material  string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit      int
	UnreadOnly bool
}

// SimulateOptions configure simulate-alert.
type SimulateOptions struct {
	Material     string
	Previous     float64
	Current      float64
	ThresholdPct float64
}
