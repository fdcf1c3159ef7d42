package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/finscope/finscope/internal/auth"
	"github.com/finscope/finscope/internal/cache"
	"github.com/finscope/finscope/internal/config"
	"github.com/finscope/finscope/internal/dates"
	"github.com/finscope/finscope/internal/krx"
	"github.com/finscope/finscope/internal/providers/coingecko"
	"github.com/finscope/finscope/internal/providers/kis"
	"github.com/finscope/finscope/internal/providers/upbit"
	"github.com/finscope/finscope/internal/providers/yahoo"
	"github.com/finscope/finscope/internal/ratelimit"
	"github.com/finscope/finscope/internal/recommend"
	"github.com/finscope/finscope/internal/screen"
)

const (
	appName = "finscope"
	version = "v1.4.0"
)

var configPath string

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Market screening over KR, US, and crypto markets",
		Version: version,
	}
	// Accept snake_case spellings of every flag; the API field names leak
	// into muscle memory.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/finscope.yaml", "Settings file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newScreenCmd(), newRecommendCmd(), newTopCmd(), newLimitsCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// services is the assembled dependency graph behind every subcommand.
type services struct {
	limiters *ratelimit.Registry
	screener *screen.Service
	rec      *recommend.Recommender
	tokens   *auth.Manager
}

func buildServices(cmd *cobra.Command) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cmd, cfg)

	var rdb redis.Cmdable
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	}

	shared := cache.New(rdb, cfg.Cache.LocalTTL())
	limiters := ratelimit.NewRegistry()

	store := auth.NewMemoryStore()
	if rdb != nil {
		store = auth.NewRedisStore(rdb)
	}
	tokens := auth.NewManager(store)

	broker := kis.New(kis.Config{
		BaseURL:   cfg.KIS.BaseURL,
		AppKey:    cfg.KIS.AppKey,
		AppSecret: cfg.KIS.AppSecret,
	}, limiters, tokens)

	resolver := dates.NewResolver(broker)
	portal := krx.NewClient(krx.Config{BaseURL: cfg.Providers.KRXBaseURL}, limiters)
	bulk := krx.NewService(portal, shared, resolver, cfg.Cache.BulkTTL())

	exchange := upbit.New(upbit.Config{BaseURL: cfg.Providers.UpbitBaseURL}, limiters)
	us := yahoo.New(yahoo.Config{BaseURL: cfg.Providers.YahooBaseURL}, limiters)
	caps := coingecko.New(coingecko.Config{BaseURL: cfg.Providers.CoingeckoBaseURL})

	screener := screen.NewService(bulk, broker, exchange, us, caps, screen.Options{
		EnrichConcurrency: cfg.Screening.EnrichConcurrency,
		EnrichTimeout:     cfg.Screening.EnrichTimeout(),
		TopByVolume:       cfg.Screening.CryptoTopByVolume,
		DropThreshold:     cfg.Screening.DropThreshold,
		MarketPanic:       cfg.Screening.MarketPanic,
	})

	return &services{
		limiters: limiters,
		screener: screener,
		rec:      recommend.New(screener),
		tokens:   tokens,
	}, nil
}

func applyLogLevel(cmd *cobra.Command, cfg *config.Settings) {
	level := cfg.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
}

func newScreenCmd() *cobra.Command {
	var req screen.Request
	var minCap, maxPER, maxPBR, minYield, maxRSI float64

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Screen a market with filters and sorting",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := buildServices(cmd)
			if err != nil {
				return err
			}
			defer svcs.tokens.Close()

			if cmd.Flags().Changed("min-market-cap") {
				req.MinMarketCap = &minCap
			}
			if cmd.Flags().Changed("max-per") {
				req.MaxPER = &maxPER
			}
			if cmd.Flags().Changed("max-pbr") {
				req.MaxPBR = &maxPBR
			}
			if cmd.Flags().Changed("min-dividend-yield") {
				req.MinDividendYield = &minYield
			}
			if cmd.Flags().Changed("max-rsi") {
				req.MaxRSI = &maxRSI
			}

			res, err := svcs.screener.Screen(cmd.Context(), req)
			if err != nil {
				return err
			}
			return emit(res)
		},
	}

	cmd.Flags().StringVar(&req.Market, "market", "kr", "Market (kr|kospi|kosdaq|us|crypto)")
	cmd.Flags().StringVar(&req.AssetType, "asset-type", "", "Asset type (stock|etf)")
	cmd.Flags().StringVar(&req.Category, "category", "", "ETF category filter")
	cmd.Flags().StringVar(&req.Strategy, "strategy", "", "Preset (oversold|momentum|high_volume)")
	cmd.Flags().StringVar(&req.SortBy, "sort-by", "", "Sort field")
	cmd.Flags().StringVar(&req.SortOrder, "sort-order", "", "Sort order (asc|desc)")
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "Result count, up to 50")
	cmd.Flags().Float64Var(&minCap, "min-market-cap", 0, "Minimum market cap (KR: 억 KRW)")
	cmd.Flags().Float64Var(&maxPER, "max-per", 0, "Maximum PER")
	cmd.Flags().Float64Var(&maxPBR, "max-pbr", 0, "Maximum PBR")
	cmd.Flags().Float64Var(&minYield, "min-dividend-yield", 0, "Minimum dividend yield (3 or 0.03)")
	cmd.Flags().Float64Var(&maxRSI, "max-rsi", 0, "Maximum RSI, triggers enrichment")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	var req recommend.Request
	var strategy, holdings string

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Build equal-weight position suggestions from a screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := buildServices(cmd)
			if err != nil {
				return err
			}
			defer svcs.tokens.Close()

			req.Strategy = recommend.Strategy(strategy)
			if holdings != "" {
				req.Holdings = strings.Split(holdings, ",")
			}
			res, err := svcs.rec.Recommend(cmd.Context(), req)
			if err != nil {
				return err
			}
			return emit(res)
		},
	}

	cmd.Flags().StringVar(&req.Market, "market", "kr", "Market (kr|kospi|kosdaq|us|crypto)")
	cmd.Flags().StringVar(&strategy, "strategy", "balanced", "Strategy (balanced|growth|value|income)")
	cmd.Flags().Float64Var(&req.Budget, "budget", 0, "Cash budget to allocate")
	cmd.Flags().IntVar(&req.MaxPositions, "max-positions", 5, "Maximum positions")
	cmd.Flags().BoolVar(&req.ExcludeHeld, "exclude-held", false, "Skip symbols already held")
	cmd.Flags().StringVar(&holdings, "holdings", "", "Comma-separated held symbols")
	return cmd
}

func newTopCmd() *cobra.Command {
	var market, kind string

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Broker ranking boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := buildServices(cmd)
			if err != nil {
				return err
			}
			defer svcs.tokens.Close()

			res, err := svcs.screener.TopStocks(cmd.Context(), market, kis.RankingType(kind))
			if err != nil {
				return err
			}
			return emit(res)
		},
	}

	cmd.Flags().StringVar(&market, "market", "kr", "Market")
	cmd.Flags().StringVar(&kind, "type", "volume", "Ranking (volume|market_cap|gainers|losers|foreign_buying)")
	return cmd
}

func newLimitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show rate-governor counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := buildServices(cmd)
			if err != nil {
				return err
			}
			defer svcs.tokens.Close()
			return emit(svcs.limiters.Snapshot())
		},
	}
}

func emit(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
