// Package config resolves the server's flat positional-argument surface
// (spec.md §6) into a typed Config, layered over viper so the same values
// can also come from a config file or environment, matching the pattern
// used across this corpus's server entrypoints.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of startup knobs.
type Config struct {
	Port         int
	TrigMode     int // 0..3, see spec.md §4.8's trigger-mode matrix
	IdleTimeoutMs int
	LingerOn     bool

	SQLHost     string
	SQLPort     int
	SQLUser     string
	SQLPassword string
	DBName      string
	SQLPoolSize int

	WorkerCount    int
	MaxQueueDepth  int

	OpenLog      bool
	LogLevel     int
	LogQueueSize int

	SrcDir string
}

// Load parses args (typically os.Args[1:]) plus any matching environment
// variables (prefixed MYWEBSERVER_) into a Config, applying spec.md's
// defaults where unset.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("webserver", pflag.ContinueOnError)

	fs.Int("port", 9006, "listen port, [1024,65536)")
	fs.Int("trig-mode", 0, "0=LT/LT 1=LT/ET 2=ET/LT 3=ET/ET")
	fs.Int("timeout-ms", 60000, "idle connection timeout in milliseconds")
	fs.Bool("linger", false, "enable SO_LINGER on the listening socket")

	fs.String("sql-host", "localhost", "MySQL host")
	fs.Int("sql-port", 3306, "MySQL port")
	fs.String("sql-user", "root", "MySQL user")
	fs.String("sql-pwd", "", "MySQL password")
	fs.String("db-name", "webserver", "MySQL schema")
	fs.Int("sql-pool-size", 8, "database connection pool size")

	fs.Int("workers", 8, "worker pool thread count")
	fs.Int("queue-depth", 1024, "worker pool bounded queue depth")

	fs.Bool("open-log", true, "enable logging subsystem")
	fs.Int("log-level", 1, "0=debug 1=info 2=warn 3=error")
	fs.Int("log-queue-size", 1024, "retained for CLI compatibility")

	fs.String("src-dir", "./resources", "static resource directory")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("MYWEBSERVER")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}

	cfg := Config{
		Port:          v.GetInt("port"),
		TrigMode:      v.GetInt("trig-mode"),
		IdleTimeoutMs: v.GetInt("timeout-ms"),
		LingerOn:      v.GetBool("linger"),

		SQLHost:     v.GetString("sql-host"),
		SQLPort:     v.GetInt("sql-port"),
		SQLUser:     v.GetString("sql-user"),
		SQLPassword: v.GetString("sql-pwd"),
		DBName:      v.GetString("db-name"),
		SQLPoolSize: v.GetInt("sql-pool-size"),

		WorkerCount:   v.GetInt("workers"),
		MaxQueueDepth: v.GetInt("queue-depth"),

		OpenLog:      v.GetBool("open-log"),
		LogLevel:     v.GetInt("log-level"),
		LogQueueSize: v.GetInt("log-queue-size"),

		SrcDir: v.GetString("src-dir"),
	}

	if cfg.Port < 1024 || cfg.Port >= 65536 {
		return Config{}, fmt.Errorf("config: port %d out of range [1024,65536)", cfg.Port)
	}
	if cfg.TrigMode < 0 || cfg.TrigMode > 3 {
		return Config{}, fmt.Errorf("config: trig-mode %d out of range [0,3]", cfg.TrigMode)
	}
	return cfg, nil
}
