package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"inputsentry/internal/config"
	"inputsentry/internal/engine"
	"inputsentry/internal/event"
	"inputsentry/internal/health"
	"inputsentry/internal/logging"
	"inputsentry/internal/metrics"
	"inputsentry/internal/report"
	"inputsentry/internal/schema"
	"inputsentry/internal/store"
	"inputsentry/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	input := fs.String("input", "", "Event source, \"-\" for stdin")
	follow := fs.Bool("follow", false, "Keep reading the input file as it grows")
	watch := fs.Bool("watch", true, "Reload detector tuning when the config changes")
	fs.Parse(args)

	path := resolveConfigPath(*configPath)
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", path, err)
		os.Exit(1)
	}
	defer loader.Close()

	if *input != "" {
		cfg.Input.Path = *input
	}
	if *follow {
		cfg.Input.Follow = true
	}
	if cfg.Input.Follow && cfg.Input.Path == "-" {
		fmt.Fprintln(os.Stderr, "Error: -follow needs a file, not stdin")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LoggingSettings())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Close()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if *watch {
		d.watchConfig(loader)
	}

	in, closeIn, err := openInput(cfg.Input)
	if err != nil {
		d.close()
		logger.Error("open input failed", "path", cfg.Input.Path, "error", err)
		os.Exit(1)
	}
	defer closeIn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := d.serve(ctx, in)
	d.close()
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("input finished",
		"lines", st.Lines,
		"accepted", st.Accepted,
		"invalid", st.Invalid,
		"rejected", st.Rejected,
	)
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func openInput(ic config.InputConfig) (io.Reader, func(), error) {
	if ic.Path == "-" {
		return os.Stdin, func() {}, nil
	}
	if ic.Follow {
		f, err := watcher.Follow(ic.Path, watcher.Options{})
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
	f, err := os.Open(ic.Path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// daemon wires one engine session to its reporters and telemetry.
type daemon struct {
	cfg       *config.Config
	log       *slog.Logger
	engine    *engine.Engine
	metrics   *metrics.Metrics
	store     *store.Store
	validator *schema.Validator
	crash     *logging.CrashHandler
	health    *health.Checker
	server    *http.Server
}

// maxDropRatio is the share of dropped verdicts above which the engine
// reports itself degraded.
const maxDropRatio = 0.1

func newDaemon(cfg *config.Config, logger *logging.Logger) (*daemon, error) {
	d := &daemon{
		cfg:     cfg,
		log:     logger.WithComponent("daemon"),
		metrics: metrics.New(),
	}

	session := uuid.New()
	d.crash = logging.NewCrashHandler(logging.DefaultCrashDir(), "inputsentryd", version, d.log)
	d.crash.SetSession(session.String())

	if cfg.Input.ValidateSchema {
		v, err := schema.NewBrowserValidator()
		if err != nil {
			return nil, fmt.Errorf("load event schema: %w", err)
		}
		d.validator = v
	}

	sinks, err := d.reporters(session.String())
	if err != nil {
		d.close()
		return nil, err
	}

	opts := []engine.Option{
		engine.WithSession(session),
		engine.WithLogger(logger.WithComponent("engine")),
		engine.WithObserver(d.metrics),
	}
	if len(sinks) > 0 {
		opts = append(opts, engine.WithReporter(sinks))
	}

	d.engine, err = engine.New(cfg.EngineSettings(), opts...)
	if err != nil {
		d.close()
		return nil, err
	}

	d.health = health.NewChecker()
	d.health.Register(health.Component{
		Name:     "engine",
		Critical: true,
		Check:    health.EngineCheck(d.engine.Statistics, maxDropRatio),
	})
	if d.store != nil {
		d.health.Register(health.Component{
			Name:  "store",
			Check: health.PingCheck(d.store.Ping),
		})
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, d.metrics.Handler())
		d.health.Mount(mux)
		d.server = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return d, nil
}

func (d *daemon) reporters(session string) (report.Multi, error) {
	var sinks report.Multi
	rc := d.cfg.Reporting

	if rc.HTTP.Endpoint != "" {
		hr, err := report.NewHTTPReporter(report.HTTPConfig{
			Endpoint:  rc.HTTP.Endpoint,
			UserAgent: rc.HTTP.UserAgent,
			TargetApp: rc.HTTP.TargetApp,
			Secret:    []byte(rc.HTTP.SigningSecret),
			Session:   session,
			Timeout:   time.Duration(rc.TimeoutMs) * time.Millisecond,
		}, nil)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, hr)
		d.log.Info("http reporting enabled", "endpoint", rc.HTTP.Endpoint, "signed", rc.HTTP.SigningSecret != "")
	}

	if rc.Store.Enabled {
		st, err := store.Open(rc.Store.Path)
		if err != nil {
			return nil, err
		}
		st.SetSession(session)
		d.store = st

		if rc.Store.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -rc.Store.RetentionDays)
			n, err := st.Prune(context.Background(), cutoff)
			if err != nil {
				d.log.Warn("prune verdict history failed", "error", err)
			} else if n > 0 {
				d.log.Info("pruned verdict history", "removed", n, "before", cutoff)
			}
		}
		sinks = append(sinks, st)
	}
	return sinks, nil
}

// watchConfig applies detector and scheduling changes from the config file
// to the running engine. Reporting and logging changes need a restart.
func (d *daemon) watchConfig(loader *config.Loader) {
	loader.OnChange(func(cfg *config.Config) {
		if err := d.engine.SetConfig(cfg.EngineSettings()); err != nil {
			d.log.Warn("config change rejected", "error", err)
			return
		}
		d.log.Info("config reloaded")
	})
	if err := loader.Watch(); err != nil {
		d.log.Warn("config watch unavailable", "error", err)
		return
	}
	d.crash.Go("config-errors", func() {
		for err := range loader.Errors() {
			d.log.Warn("config reload failed", "error", err)
		}
	})
}

// serve runs the engine over in until EOF or ctx is cancelled, then runs a
// final pass and drains pending reports.
func (d *daemon) serve(ctx context.Context, in io.Reader) (lineStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.engine.Start(context.WithoutCancel(ctx)); err != nil {
		return lineStats{}, err
	}
	d.health.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	if d.server != nil {
		g.Go(func() error {
			d.log.Info("metrics listening", "addr", d.server.Addr, "path", d.cfg.Metrics.Path)
			if err := d.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return d.server.Shutdown(shutdownCtx)
		})
	}

	type result struct {
		st  lineStats
		err error
	}
	results := make(chan result, 1)
	go func() {
		var res result
		if d.crash.Recover(func() {
			res.st, res.err = consume(in, d.engine, event.BrowserNormalizer{}, d.validator, d.log)
		}) {
			res.err = errors.New("input loop panicked")
		}
		results <- res
	}()

	var res result
	select {
	case res = <-results:
	case <-gctx.Done():
		d.log.Info("shutting down", "reason", context.Cause(gctx))
	}
	d.health.SetReady(false)
	cancel()
	groupErr := g.Wait()

	if v := d.engine.Analyze(); v != nil {
		d.log.Info("final verdict",
			"suspicious", v.Suspicious,
			"confidence", v.Confidence,
			"message", v.Message(),
		)
	}
	if err := d.engine.Stop(); err != nil {
		d.log.Warn("engine stop", "error", err)
	}

	return res.st, errors.Join(res.err, groupErr)
}

func (d *daemon) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("close store", "error", err)
		}
		d.store = nil
	}
}
