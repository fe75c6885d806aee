package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL" env-required:"true"`
	AppPort           string        `env:"APP_PORT" env-default:"8080"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"60s"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" env-default:"*"`
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN"`
}

// MustLoad reads the config from the environment and exits on failure.
// Call after godotenv has populated the environment.
func MustLoad() *Config {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("failed to read config", "error", err)
		os.Exit(1)
	}
	return &cfg
}
