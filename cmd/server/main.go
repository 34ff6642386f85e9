package main

import (
	"context"
	"errors"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamsync-backend/internal/config"
	"teamsync-backend/internal/database"
	"teamsync-backend/internal/handler"
	"teamsync-backend/internal/presence"
	"teamsync-backend/internal/relay"
	"teamsync-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config load failed")
	}

	logger := newLogger(cfg)

	// 채팅 저장소
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database connection failed")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	// presence 미러 (선택). 실패해도 릴레이는 계속 동작한다.
	var mirror *presence.Manager
	if cfg.Redis.Enabled() {
		mirror, err = presence.NewManager(cfg.Redis, serverID(), logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("presence mirror disabled")
			mirror = nil
		}
	}

	opts := relay.Options{
		SendBuffer: cfg.WebSocket.SendBuffer,
		PingPeriod: cfg.WebSocket.PingPeriod(),
		Logger:     logger,
	}
	var redisCheck handler.Pinger
	if mirror != nil {
		opts.Observer = mirror
		redisCheck = mirror
	}
	rl := relay.New(opts)

	srv := server.New(cfg, db, rl, redisCheck, logger)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	go func() {
		if err := srv.Listen(); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// 순서: 새 연결 차단과 기존 연결 정리 → HTTP 종료 → 미러 비우기 → DB
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay-and-http": func(ctx context.Context) error {
				logger.Info().Msg("shutting down")
				var errs []error
				if err := rl.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				if mirror != nil {
					if err := mirror.Close(ctx); err != nil {
						errs = append(errs, err)
					}
				}
				if err := database.Close(db); err != nil {
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	logger.Info().Int("code", exitCode).Msg("exited")
	os.Exit(exitCode)
}

// newLogger 개발 환경은 콘솔, 그 외에는 JSON
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Server.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

// serverID presence 업데이트에 붙는 인스턴스 식별자
func serverID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
