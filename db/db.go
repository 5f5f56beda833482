package db

import (
	"Gin_postgres_redis_tool_crib/models"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// PostgresDSN 拼 lib/pq 风格的连接串
func PostgresDSN(host, user, password, name, port string) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, name, port,
	)
}

// ConnectDB 打开数据库并迁移。sqlite 只用于单机/测试，连接数固定为 1
func ConnectDB(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverPostgres:
		dial = postgres.Open(dsn)
	case DriverSQLite:
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	conn, err := gorm.Open(dial, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if strings.EqualFold(driver, DriverSQLite) {
		// :memory: 每个连接一份库，且 sqlite 写入本来就是串行的
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// OpenMemory 内存 sqlite，测试和本地试跑用
func OpenMemory() (*gorm.DB, error) {
	return ConnectDB(DriverSQLite, ":memory:")
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Item{},
		&models.Transaction{},
		&models.ActivityLog{},
	); err != nil {
		return err
	}

	// 归还匹配按 (item, user) 找未归还的记录
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_item_user
	  ON %s (item_id, user_id, seq)
	  WHERE status IN ('Borrowed', 'Overdue');
	`, models.TransactionTable, models.TransactionTable)).Error; err != nil {
		return err
	}

	return nil
}
