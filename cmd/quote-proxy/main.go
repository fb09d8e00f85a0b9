package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quotecache/internal/config"
	"quotecache/pkg/batch"
	"quotecache/pkg/cache"
	"quotecache/pkg/calendar"
	"quotecache/pkg/fetch"
	"quotecache/pkg/logging"
	"quotecache/pkg/source"
	"quotecache/pkg/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogFormat == "console",
		Output: os.Stderr,
	})

	store := setupStore(cfg, logger)

	registry := throttle.NewRegistry(logging.NewLogger("throttle"))
	registry.Register(source.QuoteSource, cfg.QuoteMinInterval)
	registry.Register(calendar.OracleSource, cfg.HolidayMinInterval)

	fetcher := fetch.New(registry, fetch.DefaultConfig(), logging.NewLogger("fetch"))

	oracle := calendar.NewOracle(fetcher, cfg.HolidayBaseURL, logging.NewLogger("oracle"))
	cal, err := calendar.New(oracle, logging.NewLogger("calendar"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create trading calendar")
	}

	client, err := source.NewClient(fetcher, logging.NewLogger("source"),
		source.WithBaseURL(cfg.QuoteBaseURL))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create quote client")
	}

	orch := batch.NewOrchestrator(store, cal, logging.NewLogger("orchestrator"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/api/quotes", quotesHandler(orch, client))
	mux.HandleFunc("/api/kline", klineHandler(orch, client))
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("quote_base_url", cfg.QuoteBaseURL).
		Msg("Starting quote proxy")

	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// setupStore connects to Redis when configured and falls back to the
// in-memory store when the address is empty or unreachable.
func setupStore(cfg *config.Config, logger zerolog.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("No Redis configured, using in-memory cache")
		return cache.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().
			Err(err).
			Str("addr", cfg.RedisAddr).
			Msg("Redis unreachable, falling back to in-memory cache")
		client.Close()
		return cache.NewMemoryStore()
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	return cache.NewRedisStore(client)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// quotesHandler serves GET /api/quotes?symbols=SH600000,SZ000001&level=basic.
// Per-symbol failures surface inline in the results; only malformed input
// yields an HTTP error.
func quotesHandler(orch *batch.Orchestrator, client *source.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbols := splitSymbols(r.URL.Query().Get("symbols"))
		if len(symbols) == 0 {
			http.Error(w, "missing symbols parameter", http.StatusBadRequest)
			return
		}

		level := source.LevelBasic
		switch r.URL.Query().Get("level") {
		case "", "basic":
		case "full":
			level = source.LevelFull
		default:
			http.Error(w, "level must be basic or full", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := orch.Get(ctx, level.Category(), symbols, client.QuoteFetchFunc(level))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, resp)
	}
}

// klineHandler serves GET /api/kline?symbol=SH600000&period=daily&limit=120.
func klineHandler(orch *batch.Orchestrator, client *source.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "missing symbol parameter", http.StatusBadRequest)
			return
		}

		period := source.PeriodDaily
		switch r.URL.Query().Get("period") {
		case "", "daily":
		case "weekly":
			period = source.PeriodWeekly
		case "monthly":
			period = source.PeriodMonthly
		default:
			http.Error(w, "period must be daily, weekly, or monthly", http.StatusBadRequest)
			return
		}

		limit := 120
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := orch.Get(ctx, period.Category(), []string{symbol}, client.KlineFetchFunc(period, limit))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, resp)
	}
}

// splitSymbols parses a comma-separated symbol list, dropping empty entries.
func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
