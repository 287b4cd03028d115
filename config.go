package studio

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type AppConfig struct {
	Mode    string
	ApiPort string
	Worker  struct {
		Command string
		Args    []string
		Dir     string
	}
	Export struct {
		DefaultPath string
	}
	NatsConfig struct {
		Enabled bool
		URL     string
		Subject string
	}
	RedisConfig struct {
		Enabled  bool
		Host     string
		Port     string
		Password string
		DB       int
		TTL      time.Duration
	}
	Validation struct {
		RejectCycles bool
	}
}

var config AppConfig

// InitConfig loads envfile when it exists and falls back to the process environment.
// A desktop install usually runs without any .env at all.
func InitConfig(envfile string) {
	Logger = initLogger()
	if err := godotenv.Load(envfile); err != nil {
		Logger.Debug().Str("file", envfile).Msg("No env file loaded, using process environment")
	}

	config = LoadConfig()
	if config.Mode != "dev" {
		Logger = Logger.Level(zerolog.InfoLevel)
	}

	if config.RedisConfig.Enabled {
		client, err := connectToRedis(config.RedisConfig.Host, config.RedisConfig.Port, config.RedisConfig.Password, config.RedisConfig.DB)
		if err != nil {
			Logger.Warn().Err(err).Msg("Redis unavailable, progress history stays in memory")
		} else {
			Redis = client
		}
	}
}

// LoadConfig builds an AppConfig from the environment only.
func LoadConfig() AppConfig {
	var cfg AppConfig
	cfg.Mode = GetEnv("RUN_MODE", "dev")
	cfg.ApiPort = GetEnv("API_PORT", ":8090")

	cfg.Worker.Command = GetEnv("WORKER_COMMAND", "python")
	cfg.Worker.Args = getListEnvOrDefault("WORKER_ARGS", []string{"-u", "backend/main.py"})
	cfg.Worker.Dir = GetEnv("WORKER_DIR", "")

	cfg.Export.DefaultPath = GetEnv("EXPORT_PATH", "./exports")

	cfg.NatsConfig.Enabled = getBoolEnvOrDefault("NATS_ENABLED", false)
	cfg.NatsConfig.URL = GetEnv("NATS_URL", "nats://localhost:4222")
	cfg.NatsConfig.Subject = GetEnv("NATS_SUBJECT", "studio.events")

	cfg.RedisConfig.Enabled = getBoolEnvOrDefault("REDIS_ENABLED", false)
	cfg.RedisConfig.Host = GetEnv("REDIS_HOST", "localhost")
	cfg.RedisConfig.Port = GetEnv("REDIS_PORT", "6379")
	cfg.RedisConfig.Password = GetEnv("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = getIntEnvOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.TTL = time.Duration(getIntEnvOrDefault("REDIS_TTL_MINUTES", 24*60)) * time.Minute

	cfg.Validation.RejectCycles = getBoolEnvOrDefault("VALIDATION_REJECT_CYCLES", false)
	return cfg
}

func GetConfig() AppConfig {
	return config
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// getListEnvOrDefault splits a space separated env value, e.g. WORKER_ARGS="-u backend/main.py".
func getListEnvOrDefault(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	return strings.Fields(raw)
}

func initLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
		NoColor:    false,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("  %s  ", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s=", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}

	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

func connectToRedis(host string, port string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
