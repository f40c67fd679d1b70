// cmd/automation-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"guestflow-engine/internal/common/auth"
	"guestflow-engine/internal/common/aws"
	"guestflow-engine/internal/common/config"
	"guestflow-engine/internal/common/database"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/common/observability"
	"guestflow-engine/internal/conversation"
	"guestflow-engine/internal/delivery"
	"guestflow-engine/internal/engine/cancel"
	"guestflow-engine/internal/engine/dispatch"
	"guestflow-engine/internal/engine/generate"
	"guestflow-engine/internal/engine/reconcile"
	"guestflow-engine/internal/jobs"
	"guestflow-engine/internal/models"
	"guestflow-engine/internal/scheduler"
	"guestflow-engine/internal/store"
	"guestflow-engine/internal/template"
	"guestflow-engine/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting automation engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional audit sink) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Delivery Clients ---
	sesClient, err := aws.NewSESClient(ctx, cfg.Delivery.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client failed", zap.Error(err))
	}
	snsClient, err := aws.NewSNSClient(ctx, cfg.Delivery.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client failed", zap.Error(err))
	}

	credsClient := auth.NewChannelCredentialsClient(
		cfg.Channels.Credentials.URL,
		cfg.Channels.Credentials.ClientID,
		cfg.Channels.Credentials.ClientSecret,
	)

	zapLog.Info("All external service clients initialized")

	// --- Load Template Registry ---
	reg, err := registry.LoadRegistry(cfg.Templates.RegistryPath)
	if err != nil {
		zapLog.Fatal("template registry load failed", zap.Error(err))
	}
	zapLog.Info("Template registry loaded",
		zap.String("version", reg.Version),
		zap.Int("templates", len(reg.Templates)),
	)

	// --- Wire Engine Components ---
	scheduleStore := store.NewScheduleStore(pg.DB, log)
	scheduleStore.SetClaimLease(config.GetDuration(cfg.Automation.ClaimLeaseSec))
	reservationStore := store.NewReservationStore(pg.DB, log)
	ruleStore := store.NewRuleStore(pg.DB, log)
	conversationStore := conversation.NewStore(pg.DB, log)

	renderer := template.NewRegistryRenderer(reg)
	sender := delivery.NewSender(sesClient, snsClient, cfg.Delivery.SES.FromEmail, log)

	orchestrator := generate.NewOrchestrator(ruleStore, scheduleStore, log, cfg.Automation.CreatorTag)

	var auditSink dispatch.AuditSink
	if esClient != nil {
		auditSink = esClient
	}

	loop := dispatch.NewLoop(
		dispatch.Config{
			BatchSize:     cfg.Automation.DispatchBatchSize,
			Environment:   cfg.App.Environment,
			Enabled:       cfg.Automation.Enabled,
			ForceDispatch: cfg.Automation.ForceDispatch,
		},
		scheduleStore, renderer, conversationStore, reservationStore, sender, auditSink, log,
	)

	scanner := reconcile.NewScanner(
		reconcile.Config{
			RecentWindow:      time.Duration(cfg.Automation.RecentWindowMinutes) * time.Minute,
			CheckInLookback:   time.Duration(cfg.Automation.CheckInLookbackDays) * 24 * time.Hour,
			CheckInLookahead:  time.Duration(cfg.Automation.CheckInLookaheadDays) * 24 * time.Hour,
			CheckOutLookback:  time.Duration(cfg.Automation.CheckOutLookbackDays) * 24 * time.Hour,
			CheckOutLookahead: time.Duration(cfg.Automation.CheckOutLookaheadDays) * 24 * time.Hour,
		},
		reservationStore, scheduleStore, ruleStore, orchestrator, redisClient.Client, log,
	)

	coordinator := cancel.NewCoordinator(scheduleStore, orchestrator, log)

	// --- Register Periodic Jobs ---
	sched := scheduler.New(log, obs)
	sched.Register(jobs.NewDispatchJob(loop), config.GetDuration(cfg.Automation.DispatchIntervalSec))
	sched.Register(jobs.NewReconcileJob(scanner), config.GetDuration(cfg.Automation.ReconcileIntervalSec))
	sched.Register(jobs.NewCredentialRefreshJob(credsClient, log), config.GetDuration(cfg.Channels.Credentials.RefreshIntervalSec))

	runCtx, cancelRun := context.WithCancel(ctx)
	sched.Start(runCtx)

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sched.Status())
		})
		// Reservation lifecycle webhooks from the booking system.
		http.HandleFunc("/events/reservation-created", func(w http.ResponseWriter, r *http.Request) {
			var res models.Reservation
			if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			results, err := orchestrator.GenerateForReservation(r.Context(), res, nil, true)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(results)
		})
		http.HandleFunc("/events/reservation-updated", func(w http.ResponseWriter, r *http.Request) {
			var ev struct {
				Previous models.Reservation `json:"previous"`
				Updated  models.Reservation `json:"updated"`
			}
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			outcome, err := coordinator.HandleUpdate(r.Context(), ev.Previous, ev.Updated)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(outcome)
		})
		http.HandleFunc("/events/reservation-cancelled", func(w http.ResponseWriter, r *http.Request) {
			var ev struct {
				ReservationID string `json:"reservationId"`
			}
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			outcome, err := coordinator.HandleCancellation(r.Context(), ev.ReservationID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(outcome)
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping jobs...")
	cancelRun()
	sched.Stop()

	zapLog.Info("Automation engine stopped gracefully")
}
