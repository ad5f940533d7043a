package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Address           string   `validate:"required"`
	Port              string   `validate:"required,numeric"`
	TlsCert           string   `validate:"required_with=TlsKey"`
	TlsKey            string   `validate:"required_with=TlsCert"`
	CorsOrigins       []string `validate:"dive,required"`
	LogLevel          string   `validate:"oneof=debug info warn error"`
	JwtSecret         string   `validate:"required,min=16"`
	SnowflakeWorkerID int64    `validate:"gte=0,lte=1023"`
	SqlitePath        string   `validate:"required_if=SelfContained true"`
	DbUser            string   `validate:"required_if=SelfContained false"`
	DbAddress         string   `validate:"required_if=SelfContained false"`
	DbPort            string   `validate:"required_if=SelfContained false"`
	DbDatabase        string   `validate:"required_if=SelfContained false"`
	RedisAddress      string   `validate:"required_if=SelfContained false"`
	RedisDB           int      `validate:"gte=0"`

	BehindNginx       bool
	Cors              bool
	PrintHttpRequests bool
	LogToFile         bool
	SelfContained     bool
	DbPassword        string
	RedisPassword     string
}

func Default() Config {
	return Config{
		Address:       "localhost",
		Port:          "3000",
		LogLevel:      "info",
		SelfContained: true,
		SqlitePath:    "./database.db",
		RedisAddress:  "localhost:6379",
	}
}

func (cfg *Config) IsHttps() bool {
	return cfg.TlsCert != "" && cfg.TlsKey != ""
}

func (cfg *Config) MysqlDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&clientFoundRows=true&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase)
}

// Load reads the JSON config file at path on top of the defaults, then lets
// environment variables (and a .env file, if present) override single keys.
// Empty variables count as unset. A missing config file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := readConfigFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("reading .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func readConfigFile(path string, cfg *Config) error {
	configFile, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(bytes, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ADDRESS":        &cfg.Address,
		"PORT":           &cfg.Port,
		"TLS_CERT":       &cfg.TlsCert,
		"TLS_KEY":        &cfg.TlsKey,
		"LOG_LEVEL":      &cfg.LogLevel,
		"JWT_SECRET":     &cfg.JwtSecret,
		"SQLITE_PATH":    &cfg.SqlitePath,
		"DB_USER":        &cfg.DbUser,
		"DB_PASSWORD":    &cfg.DbPassword,
		"DB_ADDRESS":     &cfg.DbAddress,
		"DB_PORT":        &cfg.DbPort,
		"DB_DATABASE":    &cfg.DbDatabase,
		"REDIS_ADDRESS":  &cfg.RedisAddress,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}
	for key, dst := range strs {
		if value := os.Getenv(key); value != "" {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"BEHIND_NGINX":        &cfg.BehindNginx,
		"CORS":                &cfg.Cors,
		"PRINT_HTTP_REQUESTS": &cfg.PrintHttpRequests,
		"LOG_TO_FILE":         &cfg.LogToFile,
		"SELF_CONTAINED":      &cfg.SelfContained,
	}
	for key, dst := range bools {
		if value := os.Getenv(key); value != "" {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = b
		}
	}

	if value := os.Getenv("SNOWFLAKE_WORKER_ID"); value != "" {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("env SNOWFLAKE_WORKER_ID: %w", err)
		}
		cfg.SnowflakeWorkerID = id
	}

	if value := os.Getenv("REDIS_DB"); value != "" {
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("env REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if value := os.Getenv("CORS_ORIGINS"); value != "" {
		cfg.CorsOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CorsOrigins = append(cfg.CorsOrigins, origin)
			}
		}
	}

	return nil
}
