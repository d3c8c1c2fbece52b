package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/api"
	"github.com/akylbek/payment-system/recurring-billing/internal/config"
	"github.com/akylbek/payment-system/recurring-billing/internal/events"
	"github.com/akylbek/payment-system/recurring-billing/internal/gateway"
	"github.com/akylbek/payment-system/recurring-billing/internal/interfaces"
	"github.com/akylbek/payment-system/recurring-billing/internal/notify"
	"github.com/akylbek/payment-system/recurring-billing/internal/repository"
	"github.com/akylbek/payment-system/recurring-billing/internal/runguard"
	"github.com/akylbek/payment-system/recurring-billing/internal/service"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
	"github.com/akylbek/payment-system/recurring-billing/internal/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(telemetry.Options{
		ServiceName:    "recurring-billing",
		JaegerEndpoint: cfg.JaegerEndpoint,
		Debug:          cfg.Debug,
	}); err != nil {
		os.Stderr.WriteString("telemetry: " + err.Error() + "\n")
		return 1
	}
	defer telemetry.Shutdown(context.Background())
	defer telemetry.Logger.Sync()

	logBanner(cfg)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	// Initialize repositories
	directory := repository.NewDirectoryRepository(db)
	runState := repository.NewRunStateRepository(db)
	transactions := repository.NewTransactionRepository(db)
	for _, r := range []interface{ InitDB() error }{directory, runState, transactions} {
		if err := r.InitDB(); err != nil {
			telemetry.Logger.Error("Failed to initialize database", zap.Error(err))
			return 1
		}
	}

	// Connect to Redis for the cross-instance run lock
	var lock runguard.Locker
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()
		lock = runguard.NewRedisLock(redisClient, runguard.DefaultLockTTL)
	}

	// Connect to Kafka
	var publisher interfaces.EventPublisher = events.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		kafkaWriter := &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
			Topic:    cfg.KafkaTopic,
			Balancer: &kafka.Hash{},
		}
		defer kafkaWriter.Close()
		publisher = events.NewKafkaPublisher(kafkaWriter)
	}

	sender, err := notify.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	if err != nil {
		telemetry.Logger.Error("Failed to configure mail relay", zap.Error(err))
		return 1
	}

	orchestrator := service.NewOrchestrator(service.Dependencies{
		Directory:    directory,
		Transactions: transactions,
		Tracker:      tracker.New(directory, cfg.Escalation.Threshold),
		Gateway:      gateway.NewClient(cfg.Gateway, nil, gateway.ContextSleep),
		Notifier:     notify.NewMailer(sender, cfg),
		Events:       publisher,
	}, cfg)
	job := service.NewDailyJob(runguard.New(runState, lock, cfg.TestMode, cfg.Location), orchestrator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule == "" {
		return runOnce(ctx, job)
	}
	return serve(ctx, cfg, job, runState, transactions)
}

func runOnce(ctx context.Context, job *service.DailyJob) int {
	if _, err := job.Execute(ctx); err != nil {
		telemetry.Logger.Error("Billing run aborted", zap.Error(err))
		return 1
	}
	return 0
}

// serve runs the job on cfg.Schedule and exposes health, metrics and the
// read-only billing API until a termination signal arrives.
func serve(ctx context.Context, cfg *config.Config, job *service.DailyJob, runState interfaces.RunStateRepository, transactions interfaces.TransactionLogRepository) int {
	c := newScheduler(cfg.Location)
	if _, err := c.AddFunc(cfg.Schedule, scheduledRun(ctx, job)); err != nil {
		telemetry.Logger.Error("Invalid BILLING_SCHEDULE", zap.String("schedule", cfg.Schedule), zap.Error(err))
		return 1
	}
	c.Start()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(runState, transactions),
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Recurring billing starting",
			zap.String("port", cfg.Port),
			zap.String("schedule", cfg.Schedule),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	telemetry.Logger.Info("Shutting down server...")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
	return 0
}

func logBanner(cfg *config.Config) {
	payments, mail := "live gateway", "intended recipients"
	if cfg.TestMode {
		payments, mail = "gateway test mode", cfg.Mail.TestEmail
	}
	telemetry.Logger.Info("Starting recurring billing",
		zap.Bool("test_mode", cfg.TestMode),
		zap.String("payments", payments),
		zap.String("mail", mail),
		zap.String("timezone", cfg.Location.String()),
	)
}
