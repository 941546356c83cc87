package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"studylock-backend/internal/ai"
	"studylock-backend/internal/auth"
	"studylock-backend/internal/middleware"
	"studylock-backend/internal/reminders"
	"studylock-backend/internal/server"
	"studylock-backend/internal/storage"
	"studylock-backend/internal/tasks"
	"studylock-backend/internal/verification"
)

type ServeOptions struct {
	*RootOptions
	Addr        string
	NoScheduler bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder schedule",
		Long: `Run the HTTP API. Pending migrations are applied on start and the
deadline reminder job runs on REMINDER_SCHEDULE unless --no-scheduler is set.

Example:
  studylock serve
  studylock serve --addr :9090 --no-scheduler`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "do not run the reminder cron job")

	return cmd
}

func runServe(opts *ServeOptions) error {
	a, err := openApp(opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// object storage is optional: text-only proofs work without it
	var files tasks.ProofStorage
	var fetcher verification.Fetcher
	store, err := storage.NewS3(ctx, storage.Options{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKeyID:   cfg.S3AccessKeyID,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		log.Warn("S3_BUCKET not set, proof uploads disabled")
	case err != nil:
		return err
	default:
		files, fetcher = store, store
	}

	if cfg.AIKey == "" {
		log.Warn("AI_API_KEY not set, proof verification will fail")
	}
	model := ai.New(cfg.AIKey, cfg.AIGatewayURL, cfg.AIModel, cfg.AITimeout)
	verifier, err := verification.New(model, fetcher, log)
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RedisAddr != "" {
		rc, err := middleware.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, verification rate limit disabled", "error", err)
		} else {
			defer rc.Close()
			limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(rc), cfg.VerifyRateLimit, time.Minute, "verify", log)
			log.Info("verification rate limit enabled", "per_minute", cfg.VerifyRateLimit)
		}
	}

	svc := tasks.NewService(a.tasks, files, verifier, a.profiles, a.tx, log)
	reminder := a.reminder()

	handler := server.NewRouter(server.Deps{
		Users:          auth.NewStore(a.dbGetter),
		Tx:             a.tx,
		Profiles:       a.profiles,
		Subscriptions:  a.subscriptions,
		Tasks:          tasks.NewHandlers(svc, a.analytics, log),
		LockSource:     svc,
		Verifier:       verifier,
		Reminder:       reminder,
		Analytics:      a.analytics,
		Limiter:        limiter,
		JWTSecret:      []byte(cfg.JWTSecret),
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            log,
	})

	if !opts.NoScheduler {
		sched := reminders.NewScheduler(reminder, log)
		if err := sched.Start(cfg.ReminderSchedule); err != nil {
			return err
		}
		defer sched.Stop()
	}

	addr := cfg.HTTPAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server is running", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
