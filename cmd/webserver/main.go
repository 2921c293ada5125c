// Command webserver starts the reactor-based HTTP/1.1 static-asset and
// auth-form server described by this module.
package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lcf163/mywebserver/internal/config"
	"github.com/lcf163/mywebserver/internal/dbpool"
	"github.com/lcf163/mywebserver/internal/logging"
	"github.com/lcf163/mywebserver/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("webserver: %w", err)
	}

	log, err := logging.New(logging.Config{
		Enabled: cfg.OpenLog,
		Level:   cfg.LogLevel,
		Dir:     "./log",
	})
	if err != nil {
		return fmt.Errorf("webserver: logging: %w", err)
	}
	defer log.Sync()

	db, err := dbpool.Open(dbpool.Config{
		Host:     cfg.SQLHost,
		Port:     cfg.SQLPort,
		User:     cfg.SQLUser,
		Password: cfg.SQLPassword,
		DBName:   cfg.DBName,
		PoolSize: cfg.SQLPoolSize,
	})
	if err != nil {
		log.Error("database init failed", zap.Error(err))
		return fmt.Errorf("webserver: db: %w", err)
	}
	defer db.Close()

	srcDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("webserver: getwd: %w", err)
	}
	srcDir += "/resources/"
	if cfg.SrcDir != "" && cfg.SrcDir != "./resources" {
		srcDir = cfg.SrcDir
	}

	reactor, err := server.New(server.Config{
		Port:          cfg.Port,
		TrigMode:      cfg.TrigMode,
		IdleTimeout:   time.Duration(cfg.IdleTimeoutMs) * time.Millisecond,
		LingerOn:      cfg.LingerOn,
		WorkerCount:   cfg.WorkerCount,
		MaxQueueDepth: cfg.MaxQueueDepth,
		SrcDir:        srcDir,
	}, log, db)
	if err != nil {
		log.Error("reactor init failed", zap.Error(err))
		return fmt.Errorf("webserver: reactor: %w", err)
	}
	defer reactor.Close()

	log.Info("========== server init ==========",
		zap.Int("port", cfg.Port),
		zap.Bool("linger", cfg.LingerOn),
		zap.Int("trig_mode", cfg.TrigMode),
		zap.String("src_dir", srcDir),
		zap.Int("sql_pool", cfg.SQLPoolSize),
		zap.Int("workers", cfg.WorkerCount),
	)

	return reactor.Run()
}
