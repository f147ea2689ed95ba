package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"tradegate/internal/audit"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/engine"
	"tradegate/internal/store"
	"tradegate/internal/util"
)

// pipeline is the fully wired execution stack shared by the subcommands.
type pipeline struct {
	cfg    *config.Config
	log    *slog.Logger
	orders store.OrderStore
	risk   *engine.RiskEngine
	exec   *engine.TradeExecutor
	sink   audit.Sink

	closers []func()
}

// close tears the pipeline down in reverse construction order.
func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline loads the config and wires logger, store, broker adapter,
// risk engine, executor, and audit sinks.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", cfgPath, err)
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	p := &pipeline{cfg: cfg, log: log}

	if cfg.Storage.SQLitePath != "" {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening order store: %w", err)
		}
		p.orders = db
		p.closers = append(p.closers, func() { _ = db.Close() })
	} else {
		log.Warn("no sqlite_path configured, orders will not survive a restart")
		p.orders = store.NewMemoryStore()
	}

	calendar := util.NewTradingCalendar(cfg.Trading.Timezone)
	p.risk = engine.NewRiskEngine(engine.RiskLimits{
		MaxDailyLoss:    cfg.Trading.Risk.MaxDailyLoss,
		MaxPositionSize: cfg.Trading.Risk.MaxPositionSize,
		MaxOpenTrades:   cfg.Trading.Risk.MaxOpenTrades,
	}, calendar, log)

	var adapter broker.Adapter
	if cfg.Trading.LiveTradingEnabled() {
		adapter = broker.NewAlpacaAdapter(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.BaseURL, cfg.Alpaca.RateLimitPerMin)
	} else {
		adapter = broker.NewPaperAdapter()
	}

	opts := engine.ExecutorOpts{
		MaxAttempts:  cfg.Trading.Executor.MaxAttempts,
		BaseDelay:    time.Duration(cfg.Trading.Executor.BaseDelayMs) * time.Millisecond,
		OrderTimeout: time.Duration(cfg.Trading.Executor.OrderTimeoutSec) * time.Second,
	}
	p.exec, err = engine.NewTradeExecutor(adapter, p.orders, p.risk,
		cfg.Trading.LiveTradingEnabled(), opts, log)
	if err != nil {
		p.close()
		return nil, err
	}

	p.sink = buildSink(cfg, log, p)

	log.Info("pipeline ready",
		"mode", cfg.Trading.Mode, "adapter", adapter.Name(),
		"maxOpenTrades", cfg.Trading.Risk.MaxOpenTrades)
	return p, nil
}

// buildSink assembles the audit sinks: the HTTP ledger when an endpoint is
// configured, the local parquet archive when a data dir is configured, a
// logged no-op otherwise.
func buildSink(cfg *config.Config, log *slog.Logger, p *pipeline) audit.Sink {
	var sinks []audit.Sink
	if cfg.Ledger.Endpoint != "" {
		ls := audit.NewLedgerSink(cfg.Ledger.Endpoint,
			time.Duration(cfg.Ledger.TimeoutSec)*time.Second, cfg.Ledger.QueueSize, log)
		sinks = append(sinks, ls)
		p.closers = append(p.closers, ls.Close)
	}
	if cfg.Storage.DataDir != "" {
		sinks = append(sinks, audit.NewArchiveSink(cfg.Storage.DataDir, log))
	}

	switch len(sinks) {
	case 0:
		return audit.NewNoopSink(log)
	case 1:
		return sinks[0]
	default:
		return audit.NewMultiSink(sinks...)
	}
}
