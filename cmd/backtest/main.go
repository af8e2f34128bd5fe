package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/batch"
	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/internal/bootstrap"
	"dizzycode.xyz/dca-backtest/internal/handler"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/config"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/logger"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/storage/clickhouse"
	"dizzycode.xyz/dca-backtest/internal/remote"
	applog "dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration; flags override the environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s := &cfg.Strategy

	flag.StringVar(&cfg.Data.Source, "source", cfg.Data.Source, "candle source: file | redis | clickhouse")
	flag.StringVar(&cfg.Data.File, "file", cfg.Data.File, "candle file (OKX JSON or CSV)")
	flag.StringVar(&cfg.Data.InstID, "inst-id", cfg.Data.InstID, "instrument, e.g. BTC-USDT")
	flag.StringVar(&cfg.Data.Bar, "bar", cfg.Data.Bar, "bar size, e.g. 1D")
	flag.IntVar(&cfg.Data.Limit, "limit", cfg.Data.Limit, "max candles from redis/clickhouse (0 = all)")

	flag.StringVar(&s.Direction, "direction", s.Direction, "Long | Short")
	flag.Float64Var(&s.InitialOrderSize, "initial-order", s.InitialOrderSize, "initial order size (quote)")
	flag.Float64Var(&s.SafetyOrderSize, "safety-order", s.SafetyOrderSize, "first safety order size (quote)")
	flag.Float64Var(&s.VolumeMultiplier, "volume-mult", s.VolumeMultiplier, "safety order volume multiplier")
	flag.IntVar(&s.SafetyOrdersCount, "safety-count", s.SafetyOrdersCount, "max safety orders per cycle")
	flag.Float64Var(&s.PriceStepPercent, "step", s.PriceStepPercent, "price step of the first safety order (%)")
	flag.Float64Var(&s.PriceStepMultiplier, "step-mult", s.PriceStepMultiplier, "price step multiplier")
	flag.Float64Var(&s.TakeProfitPercent, "tp", s.TakeProfitPercent, "take profit (%)")
	flag.Float64Var(&s.InitialCash, "cash", s.InitialCash, "initial cash (quote)")
	flag.StringVar(&s.ExitPolicy, "exit", s.ExitPolicy, "FIFO_PARTIAL | FULL_CLOSE")
	flag.BoolVar(&s.IsFutures, "futures", s.IsFutures, "simulate a leveraged futures position")
	flag.Float64Var(&s.Leverage, "leverage", s.Leverage, "futures leverage")
	flag.Float64Var(&s.CommissionRate, "commission", s.CommissionRate, "commission rate, 0.0005 = 0.05%")
	flag.Float64Var(&s.MarginBuffer, "margin-buffer", s.MarginBuffer, "liquidation margin buffer in (0, 1]")

	flag.IntVar(&cfg.Batch.Concurrency, "concurrency", cfg.Batch.Concurrency, "parallel runs for sweeps")
	tpSweep := flag.String("tp-sweep", "", "comma separated take-profit values, e.g. 0.5,1,2")
	csvPath := flag.String("csv", "", "write the trade log of the best run to this CSV file")
	jsonPath := flag.String("json", "", "write every report to this JSON file")
	ingest := flag.Bool("ingest", false, "copy the -file candles into ClickHouse before running")
	remoteURL := flag.String("remote", "", "run on a backtest server (e.g. http://localhost:8080) and stream its trades")
	flag.Parse()

	// 2. Logger
	log, err := logger.New("dca-backtest", cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	strategy, err := cfg.Strategy.ToEngine()
	if err != nil {
		return err
	}

	jobs := []batch.Job{{Name: "default", Config: strategy}}
	if *tpSweep != "" {
		tps, err := batch.ParseFloatList(*tpSweep)
		if err != nil {
			return fmt.Errorf("-tp-sweep: %w", err)
		}
		jobs = batch.TakeProfitSweep(strategy, tps)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *remoteURL != "" {
		return runRemote(ctx, *remoteURL, cfg, strategy, log)
	}

	// 3. Optional infrastructure
	infra, err := bootstrap.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	if *ingest {
		if err := ingestCandles(ctx, cfg, infra); err != nil {
			return err
		}
	}

	source, err := infra.Source(cfg.Data.InstID, cfg.Data.Bar)
	if err != nil {
		return err
	}

	// 4. Run
	runner := batch.NewRunner(
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithLogger(log),
		batch.WithMetrics(batch.NewMetrics(prometheus.NewRegistry())),
	)
	service := application.NewBacktestService(runner, log, infra.Sinks()...)

	start := time.Now()
	outcome, err := service.Run(ctx, application.RunRequest{
		Source: source,
		InstID: cfg.Data.InstID,
		Bar:    cfg.Data.Bar,
		Jobs:   jobs,
	})
	if err != nil && outcome.Results == nil {
		return err
	}
	if err != nil {
		log.Warn("Some reports were not delivered", zap.Error(err))
	}

	// 5. Output
	for _, res := range outcome.Results {
		printResult(res)
	}
	fmt.Printf("\n%d run(s) over %d candles in %v\n", len(outcome.Results), outcome.Candles, time.Since(start))

	best, ok := batch.Best(outcome.Results)
	if ok && len(outcome.Results) > 1 {
		fmt.Printf("Best: %s  final cash %.4f\n", best.Job, best.Report.FinalCash)
	}
	if ok && *csvPath != "" {
		if err := engine.ExportTradeLogCSV(*csvPath, best.Report.Trades); err != nil {
			return err
		}
		fmt.Printf("Trade log of %s written to %s\n", best.Job, *csvPath)
	}
	if *jsonPath != "" {
		if err := writeJSON(*jsonPath, outcome.Records); err != nil {
			return err
		}
	}

	return batch.Errors(outcome.Results)
}

func runRemote(ctx context.Context, baseURL string, cfg *config.Config, strategy engine.StrategyConfig, log *applog.Logger) error {
	rawConfig, err := json.Marshal(strategy)
	if err != nil {
		return err
	}
	req := handler.BacktestRequest{
		InstID: cfg.Data.InstID,
		Bar:    cfg.Data.Bar,
		Config: rawConfig,
	}
	// A local file is sent inline; otherwise the server loads the market.
	if cfg.Data.Source == bootstrap.SourceFile && cfg.Data.File != "" {
		candles, err := loader.NewCandleLoader(cfg.Data.File).Load(ctx)
		if err != nil {
			return err
		}
		for _, c := range candles {
			req.Candles = append(req.Candles, handler.CandleDTO{
				Timestamp: c.Timestamp(),
				Open:      c.Open().Value(),
				High:      c.High().Value(),
				Low:       c.Low().Value(),
				Close:     c.Close().Value(),
			})
		}
	}

	report, err := remote.Run(ctx, baseURL, req, func(t engine.TradeLog) {
		fmt.Printf("%s %-11s price=%.4f base=%.6f cash=%.4f pnl=%.4f %s\n",
			t.Time.Format(time.RFC3339), t.Action, t.Price, t.BaseSize, t.Cash, t.PnL, t.Reason)
	}, log)
	if err != nil {
		return err
	}

	printResult(batch.Result{Job: "remote", Report: report})
	return nil
}

func ingestCandles(ctx context.Context, cfg *config.Config, infra *bootstrap.Infra) error {
	if infra.ClickHouse == nil {
		return fmt.Errorf("-ingest needs CLICKHOUSE_DSN")
	}
	if cfg.Data.File == "" {
		return fmt.Errorf("-ingest needs -file")
	}
	candles, err := loader.NewCandleLoader(cfg.Data.File).Load(ctx)
	if err != nil {
		return err
	}
	store, err := clickhouse.NewCandleSource(infra.ClickHouse, cfg.ClickHouse.Table, cfg.Data.InstID, cfg.Data.Bar, 0)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.InsertBulk(ctx, candles); err != nil {
		return err
	}
	fmt.Printf("Ingested %d candles of %s %s into ClickHouse\n", len(candles), cfg.Data.InstID, cfg.Data.Bar)
	return nil
}

func writeJSON(path string, records []application.RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printResult(res batch.Result) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Printf("Run %s (%s)\n", res.Job, res.RunID)
	fmt.Println("========================================")
	if res.Err != nil {
		fmt.Printf("FAILED: %v\n", res.Err)
		return
	}

	r := res.Report
	m := r.Metrics
	fmt.Printf("Candles:          %d (%s .. %s)\n", r.Candles,
		r.FirstCandle.Format(time.DateOnly), r.LastCandle.Format(time.DateOnly))
	fmt.Printf("Initial cash:     %.4f\n", r.InitialCash)
	fmt.Printf("Final cash:       %.4f\n", r.FinalCash)
	fmt.Printf("Realized cash:    %.4f\n", r.Cash)
	fmt.Printf("Total return:     %.2f%%\n", m.TotalReturn)
	fmt.Printf("Max drawdown:     %.2f%%\n", m.MaxDrawdown)
	fmt.Printf("Completed cycles: %d (win rate %.2f%%, profit factor %.2f)\n",
		len(r.CompletedCycles), m.WinRate, m.ProfitFactor)
	fmt.Printf("Safety orders:    %d (max depth %d)\n", m.SafetyOrders, m.MaxLedgerDepth)
	fmt.Printf("Fees:             %.4f\n", r.Totals.Fees)

	if p := r.OpenPositionSummary; p != nil {
		fmt.Printf("Open position:    %d lot(s), avg %.4f, value %.4f (marked %.4f), next TP %.4f\n",
			p.Count, p.AvgPrice, p.Value, p.MarkedValue, p.NextTakeProfitPrice)
	}
	if r.Liquidated && r.Liquidation != nil {
		fmt.Printf("LIQUIDATED at %.4f on %s, equity %.4f\n",
			r.Liquidation.Price, r.Liquidation.Timestamp.Format(time.RFC3339), r.Liquidation.Equity)
	}
}
