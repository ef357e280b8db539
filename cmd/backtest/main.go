// Command backtest replays stored candles through the auction strategy
// and persists the run, trades and equity curve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"auction-market-bot/config"
	"auction-market-bot/internal/backtest"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/marketstate"
	"auction-market-bot/internal/profile"
	"auction-market-bot/internal/strategy"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitRunFail = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		symbolsCSV     = flag.String("symbols", "", "comma separated symbols to replay")
		allSymbols     = flag.Bool("all-symbols", false, "replay every symbol in storage")
		individual     = flag.String("individual", "", "single-symbol mode with full capital")
		unlimited      = flag.Bool("unlimited", false, "disable risk gates, report the signal ceiling")
		startStr       = flag.String("start", "", "range start, YYYY-MM-DD")
		endStr         = flag.String("end", "", "range end, YYYY-MM-DD (exclusive)")
		years          = flag.Int("years", 0, "replay the last N years instead of --start/--end")
		initialCapital = flag.Float64("initial-capital", 100000, "starting equity")
		maxPositions   = flag.Int("max-positions", 5, "concurrent position cap")
		riskPerTrade   = flag.Float64("risk-per-trade", 1.0, "percent of equity risked per trade")
		exportPath     = flag.String("export", "", "write the full result as JSON to this path")
	)
	flag.Parse()

	mode := backtest.ModePortfolio
	var symbols []string
	switch {
	case *individual != "":
		mode = backtest.ModeIndividual
		symbols = []string{strings.ToUpper(*individual)}
	case *symbolsCSV != "":
		for _, s := range strings.Split(*symbolsCSV, ",") {
			if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	case *allSymbols:
		// resolved from storage below
	default:
		fmt.Fprintln(os.Stderr, "one of --symbols, --all-symbols or --individual is required")
		flag.Usage()
		return exitUsage
	}
	if *unlimited {
		mode = backtest.ModeUnlimited
	}

	start, end, err := resolveRange(*startStr, *endStr, *years)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitRunFail
	}
	logging.Setup(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})

	ctx := context.Background()
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		DBName:   cfg.DatabaseConfig.DBName,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRunFail
	}
	defer db.Close()
	repo := database.NewRepository(db)

	engine := backtest.NewEngine(backtest.Config{
		Mode:            mode,
		Start:           start,
		End:             end,
		InitialCapital:  *initialCapital,
		MaxPositions:    *maxPositions,
		RiskPerTradePct: *riskPerTrade,
		Strategy: strategy.Params{
			MinAggressionScore:  cfg.StrategyConfig.MinAggressionScore,
			ATRStopMultiplier:   cfg.StrategyConfig.ATRStopMultiplier,
			ATRTargetMultiplier: cfg.StrategyConfig.ATRTargetMultiplier,
		},
		Detector: marketstate.Params{
			POCDistanceThreshold: cfg.DetectorConfig.POCDistanceThreshold,
			MomentumThreshold:    cfg.DetectorConfig.MomentumThreshold,
			CVDPressureThreshold: cfg.DetectorConfig.CVDPressureThreshold,
			LookbackMinutes:      cfg.DetectorConfig.LookbackMinutes,
		},
		Profile: profile.Params{
			ValueAreaPct: cfg.ProfileConfig.ValueAreaPct,
			LVNFactor:    cfg.ProfileConfig.LVNFactor,
			HVNFactor:    cfg.ProfileConfig.HVNFactor,
			MinLevels:    cfg.ProfileConfig.MinLevels,
			MinLevelStep: cfg.ProfileConfig.MinLevelStep,
		},
		ATRPeriod: cfg.StrategyConfig.ATRPeriod,
	})
	runner := backtest.NewRunner(repo, engine)

	if *allSymbols {
		symbols, err = runner.AllSymbols(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list symbols: %v\n", err)
			return exitRunFail
		}
		if len(symbols) == 0 {
			fmt.Fprintln(os.Stderr, "no symbols in storage; ingest some data first")
			return exitRunFail
		}
	}

	result, err := runner.Execute(ctx, symbols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		return exitRunFail
	}

	printSummary(result, symbols)

	if *exportPath != "" {
		if err := exportJSON(*exportPath, result); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			return exitRunFail
		}
		fmt.Printf("\nResult exported to %s\n", *exportPath)
	}
	return exitOK
}

// resolveRange turns the flag combination into a half-open [start, end)
// window. --years wins over explicit dates.
func resolveRange(startStr, endStr string, years int) (time.Time, time.Time, error) {
	if years > 0 {
		end := time.Now().UTC()
		return end.AddDate(-years, 0, 0), end, nil
	}
	var start, end time.Time
	var err error
	if startStr != "" {
		if start, err = time.Parse("2006-01-02", startStr); err != nil {
			return start, end, fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
	}
	if endStr != "" {
		if end, err = time.Parse("2006-01-02", endStr); err != nil {
			return start, end, fmt.Errorf("invalid --end %q: %w", endStr, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("--end must be after --start")
	}
	return start, end, nil
}

func printSummary(result *backtest.Result, symbols []string) {
	run := result.Run
	divider := strings.Repeat("=", 64)

	fmt.Println(divider)
	fmt.Println("BACKTEST RESULTS")
	fmt.Println(divider)
	fmt.Printf("Run ID:          %s\n", run.ID)
	fmt.Printf("Mode:            %s\n", run.Mode)
	fmt.Printf("Symbols:         %s\n", strings.Join(symbols, ", "))
	fmt.Printf("Initial capital: $%.2f\n", run.InitialCapital)
	fmt.Printf("Final equity:    $%.2f (%+.2f%%)\n", run.FinalEquity,
		(run.FinalEquity-run.InitialCapital)/run.InitialCapital*100)
	fmt.Println(strings.Repeat("-", 64))
	fmt.Printf("Trades:          %d\n", run.TotalTrades)
	fmt.Printf("Win rate:        %.1f%%\n", run.WinRate)
	fmt.Printf("Profit factor:   %.2f\n", run.ProfitFactor)
	fmt.Printf("Sharpe ratio:    %.2f\n", run.SharpeRatio)
	fmt.Printf("Max drawdown:    %.2f%%\n", run.MaxDrawdownPct)
	fmt.Printf("Signals:         %d generated, %d blocked\n", run.SignalsGenerated, run.SignalsBlocked)

	if run.Mode == backtest.ModeUnlimited {
		fmt.Println(strings.Repeat("-", 64))
		fmt.Println("Signal ceiling by symbol (unlimited mode):")
		names := make([]string, 0, len(result.SignalsBySymbol))
		for s := range result.SignalsBySymbol {
			names = append(names, s)
		}
		sort.Strings(names)
		for _, s := range names {
			fmt.Printf("  %-8s %4d generated  %4d blocked\n",
				s, result.SignalsBySymbol[s], result.BlockedBySymbol[s])
		}
	}
	fmt.Println(divider)
}

func exportJSON(path string, result *backtest.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
