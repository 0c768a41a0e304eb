package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/config"
	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/idempotency"
	"github.com/gosuda/relaygate/internal/notify"
	"github.com/gosuda/relaygate/internal/ratelimit"
	"github.com/gosuda/relaygate/internal/rotation"
	"github.com/gosuda/relaygate/internal/rpc"
	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/server"
	redisstore "github.com/gosuda/relaygate/internal/store/redis"
	"github.com/gosuda/relaygate/internal/validate"
	"github.com/gosuda/relaygate/internal/webhook"
)

const (
	rateWindow      = time.Minute
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cipher, err := newCipher(cfg)
	if err != nil {
		return err
	}

	def, err := rpc.LoadFile(cfg.Gateway.RegistryPath)
	if err != nil {
		return err
	}
	validator := validate.Default()
	if def.Detector != nil {
		validator = validate.New(def.Detector)
	}
	log.Info().Strs("functions", def.Registry.Names()).Msg("rpc registry loaded")

	health := map[string]server.Pinger{"postgres": store}

	// Rate-limit counters and the idempotency ledger live in the same backend.
	var (
		limiter     ratelimit.Limiter
		ledgerStore idempotency.Store
	)
	switch cfg.Gateway.StateBackend {
	case config.BackendRedis:
		rc, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rc.Close()
		limiter = rc.Limiter(rateWindow)
		ledgerStore = rc.Ledger()
		health["redis"] = rc
	default:
		mem := ratelimit.NewInMemory(rateWindow)
		mem.StartSweeper(ctx, sweepInterval)
		limiter = mem

		ms := idempotency.NewMemoryStore()
		ms.StartSweeper(ctx, sweepInterval)
		ledgerStore = ms
	}

	var sink domain.AuditSink = store.Audit()
	if cfg.Gateway.AuditSink == config.AuditSinkLog {
		sink = audit.NewLogSink(log.With().Str("component", "audit").Logger())
	}
	if cfg.Alert.Enabled() {
		reg := notify.NewRegistry()
		reg.Register(notify.NewSlackMessengerFromToken(cfg.Alert.SlackToken))
		notifier := notify.NewNotifier(reg,
			[]notify.Route{{Platform: notify.PlatformSlack, Channel: cfg.Alert.SlackChannel}},
			cfg.Alert.PerMinute, cfg.Alert.Burst)
		alerts := notify.NewAlertSink(sink, notifier)
		defer alerts.Wait()
		sink = alerts
		log.Info().Str("channel", cfg.Alert.SlackChannel).Msg("security alerts enabled")
	}
	queue := audit.NewAsyncSink(sink, cfg.Gateway.AuditBuffer)
	defer queue.Close()
	emitter := audit.NewEmitter(sink, queue)

	gateway := rpc.NewGateway(def.Registry, limiter, store.Executor(), emitter,
		rpc.WithValidator(validator),
		rpc.WithCipher(cipher),
	)

	credentials := secrets.NewCredentialService(store.Credentials(), cipher, secrets.NewRotator(cipher, cfg.Rotation.Workers))

	receiver := webhook.NewReceiver(
		webhook.DefaultVerifiers(),
		webhook.NewEnvSecrets(config.WebhookSecretPrefix),
		idempotency.NewLedger(ledgerStore, idempotency.WithRetention(cfg.Webhook.Retention)),
		emitter,
		validator,
	)
	receiver.SetMaxBody(int(cfg.Webhook.MaxBodyBytes))

	if cfg.Rotation.Schedule != "" {
		scheduler, err := rotation.Schedule(ctx, cfg.Rotation.Schedule, rotation.NewJob(credentials, cfg.Rotation.BatchSize, emitter))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		log.Info().Str("schedule", cfg.Rotation.Schedule).Msg("credential rotation scheduled")
	}

	deps := server.Deps{
		Gateway:        gateway,
		Credentials:    credentials,
		Emitter:        emitter,
		Webhooks:       receiver,
		WebhookHandler: webhookHandler(store.Executor(), cfg.Webhook.Procedure),
		Health:         health,
	}
	if cfg.Gateway.AuditSink == config.AuditSinkPostgres {
		deps.Audit = store.Audit()
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// webhookHandler hands verified deliveries to a stored procedure. Form
// bodies, which have no decoded payload, are passed as a string.
func webhookHandler(exec rpc.Executor, procedure string) webhook.Handler {
	return func(ctx context.Context, ev webhook.Event) (json.RawMessage, error) {
		payload := ev.Payload
		if payload == nil {
			payload = string(ev.Body)
		}
		return exec.Execute(ctx, procedure, map[string]any{
			"provider":   ev.Provider,
			"webhook_id": ev.ID,
			"payload":    payload,
		})
	}
}
