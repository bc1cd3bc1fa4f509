package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"keepsake-go/internal/config"
	"keepsake-go/internal/handlers"
	"keepsake-go/internal/push"
	"keepsake-go/internal/reminder"
	"keepsake-go/internal/store"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keepsake",
		Short:         "To-do reminders delivered as web push notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), checkRemindersCmd(), migrateCmd(), createUserCmd(), vapidKeysCmd())
	return root
}

// app holds everything the commands share once config and stores are up.
type app struct {
	cfg   *config.Config
	pg    *store.PostgresStore
	lock  *store.RedisLock
	gate  push.Gate
	sched *reminder.Scheduler
}

func (a *app) Close() {
	if a.lock != nil {
		a.lock.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.SetupLogging()
	return cfg, nil
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	a := &app{cfg: cfg, pg: pgStore}

	if err := pgStore.RunMigrations(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logrus.Info("Database migrations completed")

	a.gate = push.Configure(push.CredentialsFromConfig(cfg.Push))
	if !a.gate.Enabled {
		return a, nil
	}

	opts := []reminder.Option{reminder.WithInterval(cfg.Reminder.Interval)}
	if cfg.Redis.Enabled() {
		a.lock = store.NewRedisLock(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Reminder.LockTTL)
		if err := a.lock.Ping(ctx); err != nil {
			logrus.Warnf("Redis not reachable at %s, reminder ticks will be skipped until it is: %v", cfg.Redis.Addr, err)
		}
		opts = append(opts, reminder.WithLocker(a.lock))
	}

	a.sched, err = reminder.NewScheduler(a.gate, pgStore, pgStore, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.sched != nil {
				go a.sched.Start(ctx)
			}

			h := handlers.NewHandler(a.pg, a.gate, a.sched, a.cfg.SessionSecret)
			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           h.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.Infof("Listening on :%s", a.cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logrus.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func checkRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-reminders",
		Short: "Run one reminder check cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.sched == nil {
				return reminder.ErrPushDisabled
			}

			res := a.sched.RunOnce(cmd.Context())
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
				return err
			}
			return res.Err
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			a.Close()
			return nil
		},
	}
}

func createUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-user <username> <password>",
		Short: "Create a user or reset its password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.pg.CreateUser(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s ready (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}

func vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for push notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := push.GenerateKeys()
			if err != nil {
				return fmt.Errorf("failed to generate VAPID keys: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", creds.PublicKey, creds.PrivateKey)
			fmt.Fprintln(cmd.OutOrStdout(), "(Add these and VAPID_EMAIL to your .env file)")
			return nil
		},
	}
}
