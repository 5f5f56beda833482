package app

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/gate"
	"Gin_postgres_redis_tool_crib/ledger"
	"Gin_postgres_redis_tool_crib/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config Config

	Repo   *db.Repo
	Gate   gate.Gate
	Ledger *ledger.Service

	appSess *session.AppSessionStore
	sched   *cron.Cron
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew(cfg Config) *App {
	a, err := New(cfg)
	if err != nil {
		zap.S().Fatalf("init app: %v", err)
	}
	return a
}

// New 连接数据库和 Redis 后组装 App
func New(cfg Config) (*App, error) {
	dsn := db.PostgresDSN(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	if cfg.DBDriver == db.DriverSQLite {
		dsn = cfg.SQLitePath
	}
	dbConn, err := db.ConnectDB(cfg.DBDriver, dsn)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("database connected, driver: %s", cfg.DBDriver)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	return NewWith(cfg, dbConn, rdb)
}

// NewWith 用已建好的连接组装（测试里用 sqlite + miniredis）
func NewWith(cfg Config, dbConn *gorm.DB, rdb *redis.Client) (*App, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Tool Crib Passkeys",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	var g gate.Gate
	switch cfg.GateBackend {
	case "local":
		g = gate.NewLocal()
	case "", "redis":
		// ttl 要大于最长临界区：等锁时间 + 一个批次的落库时间
		g = gate.NewRedis(rdb, cfg.GateKey, cfg.BatchWait+time.Minute)
	default:
		return nil, fmt.Errorf("unsupported GATE_BACKEND %q", cfg.GateBackend)
	}

	repo := db.NewRepo(dbConn)
	appTTL := cfg.AppTTL
	if appTTL <= 0 {
		appTTL = 24 * time.Hour
	}

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())
	useCORS(r, cfg)

	return &App{
		Router: r, DB: dbConn, RDB: rdb, WA: wa, Config: cfg,
		Repo: repo,
		Gate: g,
		Ledger: ledger.New(repo, g, ledger.Options{
			BatchWait:  cfg.BatchWait,
			SingleWait: cfg.SingleWait,
		}),
		appSess: session.NewAppSessionStore(rdb, appTTL),
	}, nil
}

func (a *App) Close() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
