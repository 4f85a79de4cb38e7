package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orbot/api"
	"orbot/config"
	"orbot/daemon"
	"orbot/interfaces"
	"orbot/logging"
	"orbot/notify"
	"orbot/replay"
	"orbot/session"
	"orbot/status"
	"orbot/store"
)

var (
	cfg    *config.Config
	logger *logging.Logger
)

// logDebug logs debug messages
func logDebug(format string, v ...interface{}) {
	logger.Debug(format, v...)
}

// logInfo logs info messages
func logInfo(format string, v ...interface{}) {
	logger.Info(format, v...)
}

// logWarning logs warning messages
func logWarning(format string, v ...interface{}) {
	logger.Warning(format, v...)
}

// logError logs error messages
func logError(format string, v ...interface{}) {
	logger.Error(format, v...)
}

// logFatal logs fatal messages and exits
func logFatal(format string, v ...interface{}) {
	logger.Fatal(format, v...)
}

type options struct {
	startDaemon   bool
	stopDaemon    bool
	restartDaemon bool
	debug         bool
	replayFile    string
	backtestFile  string
	from          string
	to            string
	results       string
}

func parseFlags() options {
	var o options
	flag.BoolVar(&o.startDaemon, "start-daemon", false, "Start the bot in the background")
	flag.BoolVar(&o.stopDaemon, "stop-daemon", false, "Stop the background bot")
	flag.BoolVar(&o.restartDaemon, "restart-daemon", false, "Restart the background bot")
	flag.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&o.replayFile, "replay", "", "Replay one day of 1-minute bars from a CSV or parquet file")
	flag.StringVar(&o.backtestFile, "backtest", "", "Backtest every day in a CSV or parquet file")
	flag.StringVar(&o.from, "from", "", "First backtest date (YYYY-MM-DD)")
	flag.StringVar(&o.to, "to", "", "Last backtest date (YYYY-MM-DD)")
	flag.StringVar(&o.results, "results", "", "Write per-day backtest results to this CSV file")
	flag.Parse()
	return o
}

func initializeApp(o options) error {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.debug {
		cfg.Debug = true
		cfg.LogLevel = int(logging.DEBUG)
	}
	if o.replayFile != "" {
		cfg.ReplayFile = o.replayFile
	}
	if o.backtestFile != "" {
		cfg.BacktestFile = o.backtestFile
	}
	if o.results != "" {
		cfg.ResultsFile = o.results
	}

	logger, err = logging.NewLogger(cfg.LogFile, cfg.LogMaxSize, cfg.LogMaxBackups, cfg.LogMaxAge,
		cfg.LogCompress, logging.LogLevel(cfg.LogLevel), cfg.Location)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logDebug("Configuration: instrument=%s profile=%s place_orders=%v paper=%v tz=%s",
		cfg.Instrument, cfg.Profile, cfg.PlaceOrders, cfg.Paper, cfg.Location)
	return nil
}

func main() {
	o := parseFlags()

	if err := initializeApp(o); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	args := daemon.StripFlags(os.Args[1:])
	switch {
	case o.stopDaemon:
		if err := daemon.StopDaemon(cfg.PidFile); err != nil {
			logFatal("Failed to stop daemon: %v", err)
		}
		logInfo("Daemon stopped")
		return
	case o.restartDaemon:
		if err := daemon.RestartDaemon(args, cfg.PidFile); err != nil {
			logFatal("Failed to restart daemon: %v", err)
		}
		logInfo("Daemon restarted")
		return
	case o.startDaemon:
		if err := daemon.StartDaemon(args, cfg.PidFile); err != nil {
			logFatal("Failed to start daemon: %v", err)
		}
		logInfo("Daemon started")
		return
	}

	if daemon.IsDaemon() {
		logInfo("Running as daemon with PID %d", os.Getpid())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notify.New(cfg.NotifyWebhook, cfg.NotifyMaxLen, cfg.NotifyTimeout, logger)

	if cfg.ReplayFile != "" || cfg.BacktestFile != "" {
		if err := runReplay(ctx, o, notifier); err != nil {
			logFatal("Replay failed: %v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logFatal("Invalid configuration: %v", err)
	}
	if err := runLive(ctx, notifier); err != nil && ctx.Err() == nil {
		logFatal("Bot stopped: %v", err)
	}
	logInfo("Shutdown complete")
}

func runLive(ctx context.Context, notifier interfaces.Notifier) error {
	rest := api.NewRESTClient(cfg, logger)
	var gateway interfaces.Gateway = rest
	if cfg.Paper || !cfg.PlaceOrders {
		gateway = api.NewPaperClient(cfg.Instrument, cfg.PaperBalance, logger)
		logInfo("Using paper gateway with balance %.2f", cfg.PaperBalance)
	}

	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}

	var m *session.Machine
	hub := status.NewHub(logger, func() interface{} { return m.Snapshot() })
	m = session.New(cfg, session.Deps{
		Source:   rest,
		Gateway:  gateway,
		Notifier: notifier,
		Store:    fs,
		Events:   hub,
		Logger:   logger,
	})

	go hub.Run(ctx)
	srv := status.StartServer(cfg, m, hub, logger)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logError("Status server shutdown: %v", err)
			}
		}()
	}

	logInfo("Starting %s session loop (profile %s)", cfg.Instrument, cfg.Profile)
	return m.Run(ctx)
}

func runReplay(ctx context.Context, o options, notifier interfaces.Notifier) error {
	rc := cfg.WithProfile("backtest")
	opts := replay.LoadOptions{TimeLayout: rc.ReplayTimeLayout, Location: rc.Location}
	if d := []rune(rc.ReplayDelimiter); len(d) > 0 {
		opts.Delimiter = d[0]
	}

	path := rc.BacktestFile
	if rc.ReplayFile != "" {
		path = rc.ReplayFile
	}
	src, err := replay.Load(path, opts)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	logInfo("Loaded %d bars from %s", len(src), path)

	results := replay.RunRange(rc, src, o.from, o.to)
	if rc.ReplayFile != "" && len(results) > 1 {
		logWarning("Replay file spans %d days; replaying all of them", len(results))
	}
	if len(results) == 0 {
		return fmt.Errorf("no weekday sessions in %s", path)
	}

	for _, r := range results {
		logInfo("\n%s", r.Report)
		if rc.ReplayFile != "" {
			notifier.Notify(ctx, r.Report)
		}
	}
	summary := replay.Summarize(results)
	logInfo("Backtest summary: %s", summary)
	if rc.BacktestFile != "" && rc.ReplayFile == "" {
		notifier.Notify(ctx, "Backtest "+path+"\n"+summary.String())
	}

	if rc.ResultsFile != "" {
		if err := replay.WriteResults(rc.ResultsFile, results); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		logInfo("Results written to %s", rc.ResultsFile)
	}
	return nil
}
