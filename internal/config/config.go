package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// placeholderSecret .env.example 에 들어 있는 기본 시크릿
const placeholderSecret = "change-this-secret-in-production"

var (
	ErrMissingSecret     = errors.New("config: JWT_SECRET is not set")
	ErrPlaceholderSecret = errors.New("config: JWT_SECRET must be changed from the default value")
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Env             string
}

// IsDevelopment 개발 환경 여부
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// LogConfig 로깅 설정
type LogConfig struct {
	Level string
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBuffer      int
}

// PingPeriod pong 대기시간의 9/10
func (w WebSocketConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	AllowAnonymous    bool
}

// DatabaseConfig 채팅 저장소 설정
type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
	Path     string
}

// DSN postgres 접속 문자열
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.TimeZone,
	)
}

// RedisConfig Redis 설정. Addr 가 비어 있으면 presence 미러를 끈다.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

// Enabled Redis 사용 여부
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RateLimitConfig 채팅 저장 API 레이트 리밋
type RateLimitConfig struct {
	ChatMax    int
	ChatWindow time.Duration
}

// Load 환경 변수에서 설정 로드 (.env 는 있으면 읽는다)
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, ErrMissingSecret
	}
	if jwtSecret == placeholderSecret {
		return nil, ErrPlaceholderSecret
	}

	database, err := LoadDatabase()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			Env:             getEnv("APP_ENV", "development"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PongWait:        getDuration("WS_PONG_WAIT", 60*time.Second),
			MaxMessageSize:  int64(getInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
			SendBuffer:      getInt("WS_SEND_BUFFER", 256),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			AllowAnonymous:    getBool("ALLOW_ANONYMOUS", true),
		},
		Database: database,
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getInt("REDIS_DB", 0),
			PresenceTTL: getDuration("PRESENCE_TTL", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			ChatMax:    getInt("CHAT_RATE_MAX", 30),
			ChatWindow: getDuration("CHAT_RATE_WINDOW", time.Minute),
		},
	}, nil
}

// LoadDatabase DB 설정만 로드 (점검 도구용, JWT 설정 불필요)
func LoadDatabase() (DatabaseConfig, error) {
	_ = godotenv.Load()

	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	if driver != "postgres" && driver != "sqlite" {
		return DatabaseConfig{}, fmt.Errorf("config: unsupported DB_DRIVER %q", driver)
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "teamsync"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		Path:     getEnv("DB_PATH", "teamsync.db"),
	}, nil
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회. 숫자만 있으면 초로 본다.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
