package app

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 从环境变量读取（.env 已由 config.LoadEnv 载入）
type Config struct {
	Port string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	SQLitePath string

	RedisAddr string
	RedisPwd  string

	WebOrigin    string
	RPID         string
	RPOrigins    []string
	SessionTTL   time.Duration // WebAuthn 仪式
	AppTTL       time.Duration // 登录会话
	AdminUserIDs []string

	GateBackend string // redis | local
	GateKey     string
	BatchWait   time.Duration
	SingleWait  time.Duration

	SweepSpec string
	Timezone  string
	UploadDir string

	LogLevel string
	LogFile  string

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3001")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "toolcrib")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("SQLITE_PATH", "toolcrib.db")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("WEB_ORIGIN", "http://localhost:5173")
	v.SetDefault("RP_ID", "localhost")
	v.SetDefault("RP_ORIGINS", "http://localhost:5173")
	v.SetDefault("SESSION_TTL_SECONDS", 600)
	v.SetDefault("APP_SESSION_TTL", "24h")
	v.SetDefault("GATE_BACKEND", "redis")
	v.SetDefault("GATE_KEY", "crib:gate")
	v.SetDefault("BATCH_LOCK_WAIT", "30s")
	v.SetDefault("SINGLE_LOCK_WAIT", "10s")
	v.SetDefault("OVERDUE_SWEEP_SPEC", "@every 1h")
	v.SetDefault("TIMEZONE", "Asia/Bangkok")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	return Config{
		Port:       v.GetString("PORT"),
		DBDriver:   strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:     v.GetString("DB_HOST"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),
		SQLitePath: v.GetString("SQLITE_PATH"),

		RedisAddr: v.GetString("REDIS_ADDR"),
		RedisPwd:  v.GetString("REDIS_PASSWORD"),

		WebOrigin:    v.GetString("WEB_ORIGIN"),
		RPID:         v.GetString("RP_ID"),
		RPOrigins:    splitCSV(v.GetString("RP_ORIGINS")),
		SessionTTL:   time.Duration(v.GetInt("SESSION_TTL_SECONDS")) * time.Second,
		AppTTL:       v.GetDuration("APP_SESSION_TTL"),
		AdminUserIDs: splitCSV(v.GetString("ADMIN_USER_IDS")),

		GateBackend: strings.ToLower(v.GetString("GATE_BACKEND")),
		GateKey:     v.GetString("GATE_KEY"),
		BatchWait:   v.GetDuration("BATCH_LOCK_WAIT"),
		SingleWait:  v.GetDuration("SINGLE_LOCK_WAIT"),

		SweepSpec: v.GetString("OVERDUE_SWEEP_SPEC"),
		Timezone:  v.GetString("TIMEZONE"),
		UploadDir: v.GetString("UPLOAD_DIR"),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
