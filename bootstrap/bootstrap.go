// Package bootstrap wires all dependencies and starts the application.
// Configuration is loaded from a single YAML file (plus env overrides),
// unlike the database-backed settings service this runtime's ancestor
// used, since a module registry's configuration is static infrastructure
// rather than tenant-editable billing state.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/apcore/acl"
	adminhttp "github.com/artpar/apcore/adapters/http"
	"github.com/artpar/apcore/adapters/idgen"
	"github.com/artpar/apcore/approval"
	"github.com/artpar/apcore/binding"
	"github.com/artpar/apcore/config"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/core/schema"
	"github.com/artpar/apcore/executor"
	"github.com/artpar/apcore/observability/logging"
	"github.com/artpar/apcore/observability/metrics"
	"github.com/artpar/apcore/observability/tracing"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// App represents the running application: a module registry plus the
// executor pipeline in front of it, reachable through an admin HTTP
// surface and reloadable through its config.Holder.
type App struct {
	Logger   zerolog.Logger
	Holder   *config.Holder
	Registry *registry.Registry
	Executor *executor.Executor
	Metrics  *metrics.Collector

	httpServer *http.Server
	tracer     io_Closer
}

// io_Closer avoids importing io just for one optional Close method; the
// only exporter that needs it is the sqlite one.
type io_Closer interface {
	Close() error
}

// New loads cfgPath once and builds an App without hot reload.
func New(cfgPath string) (*App, error) {
	holder, err := config.NewHolder(cfgPath, setupLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(holder)
}

// NewWithHotReload loads cfgPath and rebuilds the App's registry/executor
// whenever the file changes, the same way the gateway ancestor's
// NewWithHotReload watched apigate.yaml for settings changes.
func NewWithHotReload(cfgPath string) (*App, error) {
	holder, err := config.NewHolder(cfgPath, setupLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := newApp(holder)
	if err != nil {
		return nil, err
	}
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config hot reload not started")
	}
	holder.OnChange(func(cfg *config.Config) {
		a.Logger.Info().Msg("config changed, rebuilding registry and executor")
		if err := a.rebuild(cfg); err != nil {
			a.Logger.Error().Err(err).Msg("rebuild after config reload failed")
		}
	})
	return a, nil
}

func newApp(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := setupLogger(cfg)

	a := &App{
		Logger: logger,
		Holder: holder,
	}
	if err := a.rebuild(cfg); err != nil {
		return nil, err
	}
	a.initHTTPServer(cfg)
	return a, nil
}

// rebuild replaces the registry and executor in place from cfg. Each call
// re-runs discovery over cfg.Registry.Roots and builds a new tracing
// exporter from cfg.Tracing, so a config reload applies those too; it does
// not consult config.NonReloadableFields. The HTTP server is started once
// by newApp and keeps its original listen address.
func (a *App) rebuild(cfg *config.Config) error {
	reg := registry.New(a.Logger)

	if count, err := reg.Discover(cfg.Registry.Roots); err != nil {
		a.Logger.Warn().Err(err).Int("registered", count).Msg("manifest discovery incomplete")
	} else {
		a.Logger.Info().Int("count", count).Msg("discovered native modules")
	}

	for _, root := range cfg.Registry.Roots {
		bindingLoader := binding.NewLoader()
		mods, err := bindingLoader.LoadDir(root, "*.binding.yaml")
		if err != nil {
			a.Logger.Warn().Err(err).Str("root", root).Msg("binding load failed")
			continue
		}
		for _, mod := range mods {
			if err := reg.Register(mod.ModuleID, mod); err != nil {
				a.Logger.Warn().Err(err).Str("module", mod.ModuleID).Msg("register failed")
			}
		}
	}

	if cfg.Registry.WatchReload {
		if err := reg.Watch(cfg.Registry.Roots); err != nil {
			a.Logger.Warn().Err(err).Msg("registry watch not started")
		}
	}

	exec := executor.New(reg)
	exec.Validator = schema.NewValidator()

	rules, err := loadACLRules(cfg.ACL.RulesFile)
	if err != nil {
		a.Logger.Warn().Err(err).Str("file", cfg.ACL.RulesFile).Msg("acl rules not loaded, using default effect only")
	}
	exec.ACL = acl.New(rules, acl.Effect(cfg.ACL.DefaultEffect))

	exec.Limits = executor.SafetyLimits{
		MaxCallDepth:   cfg.Safety.MaxCallDepth,
		MaxModuleRepeat: cfg.Safety.MaxModuleRepeat,
	}

	switch cfg.Approval.Mode {
	case "auto_approve":
		exec.Approval = approval.NewGate(autoApprove{}, nil, nil)
	case "in_memory":
		exec.Approval = approval.NewGate(newPendingHandler(), nil, nil)
	default:
		exec.Approval = nil
	}

	if a.Metrics == nil {
		a.Metrics = metrics.NewCollector(nil)
	}
	exec.Middleware.Add(metrics.NewMiddleware(a.Metrics))

	if cfg.Logging.Level != "" {
		logCfg := logging.Config{
			Name:            "executor",
			Level:           parseLogLevel(cfg.Logging.Level),
			Format:          logging.Format(cfg.Logging.Format),
			RedactSensitive: cfg.Logging.RedactSensitive,
			Output:          os.Stdout,
		}
		cl := logging.NewContextLogger(logCfg)
		exec.Middleware.Add(logging.NewMiddleware(cl, cfg.Logging.IncludeInputs, cfg.Logging.IncludeOutput))
	}

	if cfg.Tracing.Strategy != "off" {
		texp, err := buildTracingExporter(cfg.Tracing)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("tracing exporter not configured")
		} else {
			tmw, err := tracing.NewMiddleware(texp, cfg.Tracing.SamplingRate, tracing.Strategy(cfg.Tracing.Strategy))
			if err != nil {
				a.Logger.Warn().Err(err).Msg("tracing middleware not configured")
			} else {
				exec.Middleware.Add(tmw)
			}
			if closer, ok := texp.(io_Closer); ok {
				a.tracer = closer
			}
		}
	}

	a.Registry = reg
	a.Executor = exec
	return nil
}

func buildTracingExporter(cfg config.TracingConfig) (tracing.Exporter, error) {
	switch cfg.Exporter {
	case "memory":
		return tracing.NewInMemoryExporter(1000), nil
	case "otlp":
		return tracing.NewOTLPExporter(cfg.OTLPEndpoint, nil), nil
	case "sqlite":
		return tracing.NewSQLiteExporter(cfg.SQLiteDSN)
	default:
		return &tracing.StdoutExporter{}, nil
	}
}

func loadACLRules(path string) ([]acl.Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules []acl.Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return acl.SortByTargetSpecificity(doc.Rules), nil
}

func (a *App) initHTTPServer(cfg *config.Config) {
	mux := adminhttp.NewRouter(adminhttp.Deps{
		Registry: a.Registry,
		Executor: a.Executor,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("starting http server")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Registry.Unwatch()
	a.Holder.Stop()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("tracing exporter close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	case "fatal":
		return logging.LevelFatal
	default:
		return logging.LevelInfo
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	format := "json"
	if cfg != nil {
		if parsed, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsed
		}
		if cfg.Logging.Format != "" {
			format = cfg.Logging.Format
		}
	}
	zerolog.SetGlobalLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// autoApprove approves every request without prompting, for trusted
// local/dev deployments (approval.mode: auto_approve).
type autoApprove struct{}

func (autoApprove) RequestApproval(req approval.Request) (approval.Decision, error) {
	return approval.Decision{Status: approval.StatusApproved}, nil
}

func (autoApprove) CheckApproval(token string) (approval.Decision, error) {
	return approval.Decision{Status: approval.StatusApproved}, nil
}

// pendingHandler parks every request as pending, for deployments where a
// human resolves approvals out of band (an admin CLI or UI polling
// CheckApproval with the returned approval id as token).
type pendingHandler struct {
	mu     sync.Mutex
	idgen  idgen.Generator
	status map[string]approval.Decision
}

func newPendingHandler() *pendingHandler {
	return &pendingHandler{idgen: idgen.UUID{}, status: make(map[string]approval.Decision)}
}

func (h *pendingHandler) RequestApproval(req approval.Request) (approval.Decision, error) {
	id := h.idgen.New()
	d := approval.Decision{Status: approval.StatusPending, ApprovalID: id}
	h.mu.Lock()
	h.status[id] = d
	h.mu.Unlock()
	return d, nil
}

func (h *pendingHandler) CheckApproval(token string) (approval.Decision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.status[token]
	if !ok {
		return approval.Decision{Status: approval.StatusRejected}, nil
	}
	return d, nil
}

// Resolve marks a pending approval id as approved or rejected, called by
// an operator-facing surface (out of scope here).
func (h *pendingHandler) Resolve(approvalID string, approved bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.status[approvalID]
	if !ok {
		return
	}
	if approved {
		d.Status = approval.StatusApproved
	} else {
		d.Status = approval.StatusRejected
	}
	h.status[approvalID] = d
}
