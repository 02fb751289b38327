package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookedbarber/scheduling/libs/config"
	"github.com/bookedbarber/scheduling/libs/db"
	"github.com/bookedbarber/scheduling/libs/httpx"
	"github.com/bookedbarber/scheduling/libs/kafkax"
	otelx "github.com/bookedbarber/scheduling/libs/otel"
	"github.com/bookedbarber/scheduling/libs/runtime"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/consumer"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/handlers"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/inbox"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/outbox"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/policy"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/schedule"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/slotcache"
	"github.com/bookedbarber/scheduling/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(name, def string, min int) int {
	v, err := strconv.Atoi(config.String(name, def))
	if err != nil || v < min {
		v, _ = strconv.Atoi(def)
	}
	return v
}

// fallbackPolicy is used when a shop has no policy row yet.
func fallbackPolicy() schedule.BookingPolicy {
	return schedule.BookingPolicy{
		MinLeadTime:         time.Duration(intEnv("DEFAULT_MIN_LEAD_MINUTES", "60", 0)) * time.Minute,
		MaxAdvanceDays:      intEnv("DEFAULT_MAX_ADVANCE_DAYS", "30", 1),
		SameDayCutoffMinute: intEnv("DEFAULT_SAME_DAY_CUTOFF_MINUTE", "-1", -1),
		SlotIncrement:       time.Duration(intEnv("DEFAULT_SLOT_INCREMENT_MINUTES", "15", 1)) * time.Minute,
		Timezone:            config.String("DEFAULT_SHOP_TIMEZONE", "UTC"),
	}
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	var policyProvider policy.Provider
	if config.String("POLICY_SOURCE", "db") == "static" {
		policyProvider = policy.NewStaticProvider(fallbackPolicy())
	} else {
		policyProvider = policy.NewRemoteProvider(logger,
			config.String("ROSTER_GRPC_ADDR", ""),
			policy.NewDBProvider(repo, fallbackPolicy(), logger),
		)
	}

	var rdb *redis.Client
	var slotCache *slotcache.Cache
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       intEnv("REDIS_DB", "0", 0),
		})
		defer func() { _ = rdb.Close() }()
		ttl := time.Duration(intEnv("SLOT_CACHE_TTL_SECONDS", "120", 1)) * time.Second
		slotCache = slotcache.New(rdb, ttl, logger)
		logger.Info("slot cache enabled (redis)", "redis_addr", addr, "ttl", ttl)
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Roster events invalidate cached slot responses; the source of truth
	// stays in Postgres, so with no cache there is nothing to do.
	if slotCache != nil {
		inboxRepo := inbox.NewRepository(pool)
		startConsumer := func(topic string) {
			if strings.TrimSpace(topic) == "" {
				return
			}
			consumerCfg := consumer.Config{
				Brokers: config.String("KAFKA_BROKERS", ""),
				GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
				Topic:   topic,
			}
			eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
				var payload struct {
					ShopID string `json:"shop_id"`
				}
				if err := json.Unmarshal(msg.Value, &payload); err != nil {
					logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
					return nil
				}
				if payload.ShopID == "" {
					logger.Error("missing shop_id in event", "topic", msg.Topic)
					return nil
				}
				slotCache.Invalidate(ctx, payload.ShopID)
				return nil
			})
			go eventConsumer.Run(ctx)
		}
		startConsumer(config.String("KAFKA_CONSUME_TOPIC", outbox.EventWorkingHoursUpdated))
		startConsumer(config.String("KAFKA_CONSUME_TOPIC_2", outbox.EventPolicyUpdated))
	}

	bookingHandler := handlers.NewBookingHandler(repo, outboxRepo, logger, policyProvider, slotCache)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/slots/next", bookingHandler.NextAvailable)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)

	limitPerMinute := intEnv("RATE_LIMIT_PER_MINUTE", "120", 1)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		rateLimitMW = rl.Middleware(logger, config.String("RATE_LIMIT_FAIL_OPEN", "true") == "true")
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(time.Duration(intEnv("REQUEST_TIMEOUT_SECONDS", "15", 1))*time.Second),
		httpx.WithBodyLimit(int64(intEnv("REQUEST_BODY_LIMIT_BYTES", "1048576", 1))),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
