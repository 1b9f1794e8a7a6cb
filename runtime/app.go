package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"screenloom/device"
	"screenloom/llm"
	"screenloom/runtime/store"
	"screenloom/session"
)

// App assembles the whole runtime: session state, variable store, device
// gateway, engine and dispatcher, plus the HTTP surface.
type App struct {
	Config     *AppConfig
	Logger     *slog.Logger
	Monitor    *session.Monitor
	Store      Store
	Devices    *device.Registry
	Gateway    *device.Gateway
	Engine     *Engine
	Dispatcher *Dispatcher
	Registry   *prometheus.Registry

	redisClient *redis.Client
	watchCancel context.CancelFunc
}

func NewApp(cfg *AppConfig) (*App, error) {
	logger := newLogger(cfg.LogLevel)
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Monitor:  session.NewMonitor(),
		Registry: prometheus.NewRegistry(),
	}

	if err := app.buildStore(); err != nil {
		return nil, err
	}
	app.seedSession()

	if err := app.buildDevices(); err != nil {
		return nil, err
	}
	app.Gateway = device.NewGateway(app.Devices, app.Monitor, logger)

	app.Engine = NewEngine(app.Store, app.Gateway, logger)
	app.Engine.SetMetrics(NewMetrics(app.Registry))
	if cfg.LLM != nil {
		app.Engine.SetEnhancer(llm.New(*cfg.LLM))
	}

	app.Dispatcher = NewDispatcher(app.Engine, app.Monitor, logger)
	if err := app.loadFlows(); err != nil {
		return nil, err
	}

	return app, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (a *App) buildStore() error {
	cfg := a.Config.Redis
	if cfg == nil {
		a.Store = NewMemoryStore()
		return nil
	}

	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}

	a.redisClient = redis.NewClient(opts)
	a.Store = store.NewRedis(a.redisClient,
		store.WithPrefix(cfg.Prefix),
		store.WithNameCheck(ValidateFlowName),
		store.WithLogger(a.Logger),
	)
	return nil
}

// seedSession publishes the configured identities and mirrors session state
// into the store as system variables.
func (a *App) seedSession() {
	a.Store.SetSystem("Player", a.Config.Session.Player)
	a.Store.SetSystem("Char", a.Config.Session.Char)
	if a.Config.Session.Gender != "" {
		a.Store.SetSystem("Gender", a.Config.Session.Gender)
	}
	a.Monitor.Mirror(a.Store)
}

func (a *App) buildDevices() error {
	reg := device.NewRegistry()
	cfg := a.Config.Devices

	if cfg.Mock {
		reg.Register("mock_pump", device.NewMock())
	}
	if cfg.Kasa != nil {
		kasa := device.NewKasa(*cfg.Kasa)
		for id := range cfg.Kasa.Devices {
			reg.Register(id, kasa)
		}
	}
	if cfg.Tapo != nil {
		tapo := device.NewTapo(*cfg.Tapo)
		for id := range cfg.Tapo.Devices {
			reg.Register(id, tapo)
		}
	}
	if cfg.Wyze != nil {
		wyze := device.NewWyze(*cfg.Wyze)
		for id := range cfg.Wyze.Devices {
			reg.Register(id, wyze)
		}
	}
	if cfg.Tuya != nil {
		tuya := device.NewTuya(*cfg.Tuya)
		for id := range cfg.Tuya.Devices {
			reg.Register(id, tuya)
		}
	}
	if cfg.Govee != nil {
		govee := device.NewGovee(*cfg.Govee)
		for id := range cfg.Govee.Devices {
			reg.Register(id, govee)
		}
	}

	a.Devices = reg
	return nil
}

func (a *App) loadFlows() error {
	loader := NewFlowLoader()
	graphs, err := loader.LoadDir(a.Config.FlowsDir)
	if err != nil {
		return fmt.Errorf("error loading flows: %w", err)
	}
	for _, g := range graphs {
		a.Dispatcher.Register(g)
		a.Logger.Info("flow registered", "flow", g.ID, "name", g.Name, "trigger", g.Trigger.Type)
	}
	return nil
}

// Start initializes adapters that need a warm-up (vendor logins) and begins
// watching session events for trigger bindings.
func (a *App) Start(ctx context.Context) error {
	if err := a.Devices.Initialize(ctx); err != nil {
		return fmt.Errorf("device initialization failed: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.Dispatcher.StartWatch(watchCtx)
	return nil
}

// Router builds the gin engine with the full HTTP surface mounted.
func (a *App) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	NewHttpHandler(a.Engine, a.Dispatcher, a.Monitor, a.Registry, g)
	return g
}

// Shutdown stops session watching, sweeps devices off and releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}

	err := a.Engine.EmergencyStop(ctx)
	if derr := a.Devices.Shutdown(ctx); err == nil {
		err = derr
	}
	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
