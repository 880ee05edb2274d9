package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bozweather/trader/internal/approval"
	"github.com/bozweather/trader/internal/config"
	"github.com/bozweather/trader/internal/cryptoutil"
	"github.com/bozweather/trader/internal/httpapi"
	"github.com/bozweather/trader/internal/kalshi"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/orchestrator"
	"github.com/bozweather/trader/internal/prediction"
	"github.com/bozweather/trader/internal/risk"
	"github.com/bozweather/trader/internal/scheduler"
	"github.com/bozweather/trader/internal/settlement"
	"github.com/bozweather/trader/internal/sizing"
	"github.com/bozweather/trader/internal/store"
	"github.com/bozweather/trader/internal/weather"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Exchange adapter ---
	privateKey, err := loadKalshiPrivateKey(cfg)
	if err != nil {
		slog.Error("failed to load exchange signing key", "err", err)
		os.Exit(1)
	}
	kalshiBaseURL := os.Getenv("KALSHI_BASE_URL")
	if kalshiBaseURL == "" {
		kalshiBaseURL = "https://api.elections.kalshi.com"
	}
	exchange := kalshi.NewClient(kalshiBaseURL, cfg.KalshiKeyID, privateKey)

	// --- Forecast ingestion ---
	nwsProvider := weather.NewGovProvider("https://api.weather.gov", cfg.NWSUserAgent, http.DefaultClient)
	multiModelProvider := weather.NewMultiModelProvider("https://api.open-meteo.com", http.DefaultClient)
	forecastIngestor := weather.NewIngestor(st, nwsProvider, multiModelProvider)

	// --- Settlement ingestion ---
	reportFetcher := settlement.NewGovReportFetcher("https://www.ncei.noaa.gov", cfg.NWSUserAgent)
	settlementIngestor := settlement.NewIngestor(reportFetcher, st, postmortemObserver{store: st})

	// --- Prediction generation ---
	generator := prediction.NewGenerator(forecastIngestor, exchange, st)

	// --- Approval queue + orchestrator ---
	approvalQueue := approval.NewQueue(st, orchestrator.NewApprovalOrderPlacer(exchange))
	approvalQueue.ApprovalWindow = cfg.ApprovalWindow()

	orch := &orchestrator.Orchestrator{
		Predictions:         st,
		Forecasts:           st,
		Exchange:            exchange,
		Orders:              exchange,
		Approval:            approvalQueue,
		Freshness:           forecastIngestor,
		Ledger:              st,
		Cities:              weather.DefaultCities,
		FreshnessCapMinutes: cfg.FreshnessCapMinutes,
	}

	sizingCfg := sizing.DefaultConfig(model.Cents(cfg.DefaultMaxTradeSizeCents))
	sizingCfg.MinEVThreshold = cfg.DefaultMinEVThreshold
	sizingCfg.KellyCap = cfg.KellyCap

	riskCfg := risk.Config{
		FreshnessCapMinutes:   cfg.FreshnessCapMinutes,
		MinEVThreshold:        cfg.DefaultMinEVThreshold,
		MaxTradeSizeCents:     model.Cents(cfg.DefaultMaxTradeSizeCents),
		MaxDailyExposureCents: model.Cents(cfg.DefaultMaxDailyExposureCents),
		DailyLossLimitCents:   model.Cents(cfg.DefaultDailyLossLimitCents),
		CooldownPerLoss:       cfg.CooldownDuration(),
		ConsecutiveLossLimit:  cfg.DefaultConsecutiveLossLimit,
	}

	// --- Dashboard WebSocket hub + HTTP API ---
	wsHub := httpapi.NewWSHub()
	go wsHub.Run()
	dashboard := httpapi.NewService(st, approvalQueue, wsHub)

	// --- Scheduler ---
	// Cron specs are evaluated in UTC: the "_local" jobs fire at 06:00,
	// 08:00 and Sunday 03:00 UTC, not at each city's local time.
	sched := scheduler.New(time.UTC)
	registerJobs(sched, forecastIngestor, settlementIngestor, generator, orch, approvalQueue, st, sizingCfg, riskCfg)
	sched.Start()
	defer sched.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"boz-weather-trader"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", dashboard.Routes)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("boz-weather-trader listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down boz-weather-trader...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("boz-weather-trader stopped")
}

// registerJobs wires the six scheduler jobs the trading system runs on.
func registerJobs(
	sched *scheduler.Scheduler,
	forecastIngestor *weather.Ingestor,
	settlementIngestor *settlement.Ingestor,
	generator *prediction.Generator,
	orch *orchestrator.Orchestrator,
	approvalQueue *approval.Queue,
	st store.Store,
	sizingCfg sizing.Config,
	riskCfg risk.Config,
) {
	must := func(err error) {
		if err != nil {
			slog.Error("scheduler registration failed", "err", err)
			os.Exit(1)
		}
	}

	must(sched.Register("*/30 * * * *", "forecast_fetch_every_30m", 5*time.Minute, func(ctx context.Context) {
		forecastIngestor.FetchAll(ctx)
		generator.RunAll(ctx)
	}))

	must(sched.Register("0 6 * * *", "full_refresh_0600_local", 10*time.Minute, func(ctx context.Context) {
		forecastIngestor.FetchAll(ctx)
		generator.RunAll(ctx)
	}))

	must(sched.Register("0 8 * * *", "settlement_fetch_0800_local", 30*time.Minute, func(ctx context.Context) {
		yesterday := time.Now().UTC().Add(-24 * time.Hour).Format("2006-01-02")
		settlementIngestor.RunMorningClose(ctx, yesterday)
	}))

	must(sched.Register("*/15 * * * *", "trade_cycle_every_15m", orchestrator.CycleTimeout, func(ctx context.Context) {
		users, err := st.ListUsers(ctx)
		if err != nil {
			slog.Error("trade_cycle: failed to list users", "err", err)
			return
		}
		for _, user := range users {
			userSizingCfg := sizingCfg
			userSizingCfg.MinEVThreshold = user.MinEVThreshold
			userSizingCfg.MaxTradeSizeCents = user.MaxTradeSizeCents

			userRiskCfg := riskCfg
			userRiskCfg.MaxTradeSizeCents = user.MaxTradeSizeCents
			userRiskCfg.MaxDailyExposureCents = user.MaxDailyExposureCents
			userRiskCfg.DailyLossLimitCents = user.DailyLossLimitCents
			userRiskCfg.ConsecutiveLossLimit = user.ConsecutiveLossLimit

			if err := orch.RunCycle(ctx, user, userSizingCfg, userRiskCfg); err != nil {
				slog.Error("trade_cycle: cycle failed", "user_id", user.ID, "err", err)
			}
		}
	}))

	must(sched.Register("* * * * *", "pending_queue_sweep_every_60s", 30*time.Second, func(ctx context.Context) {
		approvalQueue.SweepExpired(ctx)
	}))

	must(sched.Register("0 3 * * 0", "weekly_model_retrain_sun_0300_local", time.Minute, func(ctx context.Context) {
		slog.Info("weekly_model_retrain: no-op — ensemble weights and error-std fallback table are static config, not a trained model")
	}))
}

// loadKalshiPrivateKey decrypts and parses the exchange signing key.
// KALSHI_PRIVATE_KEY_PEM holds base64(AES-GCM(PEM bytes)) at rest; the
// decrypted PEM never leaves this function's stack frame beyond the
// parsed *rsa.PrivateKey it produces.
func loadKalshiPrivateKey(cfg *config.Config) (*rsa.PrivateKey, error) {
	if cfg.KalshiPrivateKeyPEM == "" {
		return nil, fmt.Errorf("main: KALSHI_PRIVATE_KEY_PEM is required")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cfg.KalshiPrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("main: decode KALSHI_PRIVATE_KEY_PEM: %w", err)
	}

	plaintext, err := cryptoutil.Decrypt(cfg.EncryptionKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("main: decrypt exchange signing key: %w", err)
	}
	defer cryptoutil.Scrub(plaintext)

	block, _ := pem.Decode(plaintext)
	if block == nil {
		return nil, fmt.Errorf("main: exchange signing key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("main: parse exchange signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("main: exchange signing key is not an RSA key")
	}
	return key, nil
}

// postmortemObserver builds and persists the deterministic postmortem
// narrative for every trade a settlement closes.
type postmortemObserver struct {
	store store.Store
}

func (o postmortemObserver) SettlementObserved(ctx context.Context, s model.Settlement) {
	trades, err := o.store.UnsettledTrades(ctx, s.City, s.TargetDate)
	if err != nil {
		slog.Error("postmortem: failed to load unsettled trades", "city", s.City, "target_date", s.TargetDate, "err", err)
		return
	}

	for _, trade := range trades {
		status, pnlCents, narrative := prediction.Settle(trade, s.ActualHighF)
		if err := o.store.UpdateTradeSettlement(ctx, trade.ID, status, s.ActualHighF, pnlCents, narrative, time.Now().UTC()); err != nil {
			slog.Error("postmortem: failed to persist settlement", "trade_id", trade.ID, "err", err)
			continue
		}
		metrics.TradesSettledTotal.WithLabelValues(string(status)).Inc()
		metrics.RealizedPnLCents.Add(float64(pnlCents))
		slog.Info("trade settled", "trade_id", trade.ID, "status", status, "pnl_cents", pnlCents)
	}
}
