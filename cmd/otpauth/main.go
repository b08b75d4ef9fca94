package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/config"
	"github.com/xxxsen/otpauth/internal/db"
	"github.com/xxxsen/otpauth/internal/handler"
	"github.com/xxxsen/otpauth/internal/job"
	"github.com/xxxsen/otpauth/internal/middleware"
	"github.com/xxxsen/otpauth/internal/pkg/password"
	"github.com/xxxsen/otpauth/internal/repo"
	"github.com/xxxsen/otpauth/internal/schedule"
	"github.com/xxxsen/otpauth/internal/service"
)

type services struct {
	otp    *service.OTPService
	users  *service.UserService
	signIn *service.SignInService
}

func main() {
	var (
		configPath string
		cronSpec   string
	)

	rootCmd := &cobra.Command{
		Use:   "otpauth",
		Short: "mobile OTP authentication server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "delete expired otps once, or on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			cleanup := job.NewOTPCleanupJob(buildServices(cfg, conn).otp)
			if cronSpec == "" {
				return schedule.RunOnce(context.Background(), cleanup)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			scheduler := schedule.NewCronScheduler()
			if err := scheduler.AddJob(cleanup, cronSpec); err != nil {
				return err
			}
			scheduler.Start(ctx)
			<-ctx.Done()
			scheduler.Stop()
			return nil
		},
	}
	cleanupCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	cleanupCmd.Flags().StringVar(&cronSpec, "cron", "", "cron spec, runs once when empty")

	rootCmd.AddCommand(runCmd, cleanupCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded",
		zap.String("config", configPath),
		zap.String("app_env", cfg.AppEnv),
		zap.String("otp_env", cfg.OTPEnv),
	)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func buildServices(cfg *config.Config, conn *sql.DB) *services {
	userRepo := repo.NewUserRepo(conn)
	otpRepo := repo.NewOTPRepo(conn)
	hasher := password.NewHasher(password.DefaultParams)

	defaultPassword := ""
	if cfg.Properties.EnableDefaultPassword {
		defaultPassword = cfg.DefaultPassword
	}
	otp := service.NewOTPService(otpRepo, service.NewSMSSender(cfg), cfg.DevelopmentOTP())
	return &services{
		otp:    otp,
		users:  service.NewUserService(userRepo, otp, hasher, defaultPassword),
		signIn: service.NewSignInService(userRepo, otp, hasher, []byte(cfg.AuthSecret), sessionTTL(cfg)),
	}
}

func sessionTTL(cfg *config.Config) time.Duration {
	return time.Hour * time.Duration(cfg.SessionTTLHours)
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.Int("session_ttl_hours", cfg.SessionTTLHours),
		zap.Int("rate_limit_seconds", cfg.RateLimitSecs),
	)

	if err := handler.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}
	svc := buildServices(cfg, conn)
	secureCookie := cfg.AppEnv != config.EnvDevelopment

	deps := handler.RouterDeps{
		OTP:        handler.NewOTPHandler(svc.otp),
		User:       handler.NewUserHandler(svc.users, secureCookie),
		Auth:       handler.NewAuthHandler(svc.signIn, secureCookie),
		Properties: handler.NewPropertiesHandler(svc.otp.Properties()),
		Session: middleware.SessionOptions{
			Secret: []byte(cfg.AuthSecret),
			TTL:    sessionTTL(cfg),
			Secure: secureCookie,
		},
		RateLimit: time.Duration(cfg.RateLimitSecs) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.AllowedOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CleanupCron != "" {
		scheduler := schedule.NewCronScheduler()
		if err := scheduler.AddJob(job.NewOTPCleanupJob(svc.otp), cfg.CleanupCron); err != nil {
			return fmt.Errorf("schedule otp cleanup: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
