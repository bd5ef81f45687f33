// The gateway serves the marketplace HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/unimart/unimart/applications/httpapi"
	"github.com/unimart/unimart/internal/config"
	"github.com/unimart/unimart/internal/countcache"
	"github.com/unimart/unimart/internal/domain"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/services/auth"
	"github.com/unimart/unimart/services/deals"
	"github.com/unimart/unimart/services/otp"
	"github.com/unimart/unimart/services/products"
	"github.com/unimart/unimart/supabase/client"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := logging.New("gateway")

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.WithError(err).Fatal("configuration error")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	apiKey := cfg.Supabase.ServiceKey
	if apiKey == "" {
		apiKey = cfg.Supabase.AnonKey
	}
	supa, err := client.New(client.Config{
		URL:            cfg.Supabase.URL,
		APIKey:         apiKey,
		OnBackendError: m.RecordBackendError,
	})
	if err != nil {
		logger.WithError(err).Fatal("supabase client setup failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	st := store.New(supa, cfg.Supabase.Bucket, logger)
	counts := countcache.New(st.Products.CountForUser)
	counts.SetObserver(m.RecordCountCacheOutcome)

	productSvc := products.New(st, counts, m, logger)
	browser := products.NewBrowser(productSvc)
	dealSvc := deals.New(st, counts, m, logger)
	authSvc := auth.New(supa.Auth(), st, counts, logger)

	// Session transitions feed the audit log and the session metric.
	sessions, unsubSessions := authSvc.Broadcast().Subscribe()
	defer unsubSessions()
	go func() {
		for ev := range sessions {
			m.RecordSessionEvent(ev.Type)
			logger.WithFields(map[string]interface{}{
				"event":   ev.Type,
				"user_id": ev.UserID,
			}).Info("session event")
		}
	}()

	var sender otp.Sender
	if cfg.SMS.AccountSID != "" {
		sender = otp.NewTwilioSender(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber)
	} else {
		logger.Warn("no SMS credentials configured, OTP codes are logged instead of sent")
		sender = logSender{logger: logger}
	}
	otpSvc := otp.New(rdb, sender, supa.Auth(), st, m, logger)

	// Keep browse caches honest while deals complete in the background.
	realtime := client.NewRealtimeClient(cfg.Supabase.URL, apiKey)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realtime.Connect(ctx); err != nil {
		logger.WithError(err).Warn("realtime connect failed, browse caches rely on TTL only")
	} else {
		defer realtime.Close()
		unsubscribe, err := realtime.Subscribe(ctx, client.ChangeFilter{
			Event:  "*",
			Schema: "public",
			Table:  store.TableProducts,
		}, func(ev client.ChangeEvent) {
			m.RecordRealtimeEvent(store.TableProducts, ev.Type)
			browser.InvalidateAll()
		})
		if err != nil {
			logger.WithError(err).Warn("realtime subscribe failed")
		} else {
			defer unsubscribe()
		}

		// Keep the public deals counter fresh without a read per request.
		unsubCounter, err := realtime.Subscribe(ctx, client.ChangeFilter{
			Event:  "UPDATE",
			Schema: "public",
			Table:  store.TableDealsMetadata,
			Filter: "key=eq." + domain.DealsCompletedKey,
		}, func(ev client.ChangeEvent) {
			m.RecordRealtimeEvent(store.TableDealsMetadata, ev.Type)
			var row struct {
				Value int `json:"value"`
			}
			if err := json.Unmarshal(ev.New, &row); err != nil {
				return
			}
			dealSvc.RefreshCounter(row.Value)
		})
		if err != nil {
			logger.WithError(err).Warn("deals counter subscribe failed")
		} else {
			defer unsubCounter()
		}
	}

	server := httpapi.NewServer(cfg, httpapi.Services{
		Auth:     authSvc,
		Products: productSvc,
		Browser:  browser,
		Deals:    dealSvc,
		OTP:      otpSvc,
	}, m, registry, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown incomplete")
	}
	logger.Info("gateway stopped")
}

// logSender is the development fallback when Twilio is not configured.
type logSender struct {
	logger *logging.Logger
}

func (l logSender) Send(ctx context.Context, phone, code string) error {
	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"phone": phone,
		"code":  code,
	}).Info("otp code (development mode)")
	return nil
}
