package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/model"
)

// InitDB 按配置打开嵌入式数据库并迁移表结构。
// sqlite 为缺省驱动（单文件嵌入库），postgres 供多节点部署选用。
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite", "":
		dial = sqlite.Open(cfg.Database.DSN)
	case "postgres":
		dial = postgres.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver != "postgres" {
		// 页缓存内存预算由引擎内部执行，这里只下发上限
		if mem := cfg.Database.MemMB; mem > 0 {
			db.Exec(fmt.Sprintf("PRAGMA cache_size = -%d", mem*1024))
		}
		db.Exec("PRAGMA journal_mode = WAL")
		db.Exec("PRAGMA busy_timeout = 5000")
	}

	if err := db.AutoMigrate(
		&model.TxRecord{},
		&model.ReplCursor{},
		&model.ScheduledJob{},
		&model.EmailMessage{},
		&model.EmailError{},
		&model.User{},
	); err != nil {
		return nil, err
	}
	return db, nil
}
