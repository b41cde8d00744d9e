package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	Port             string        `mapstructure:"PORT"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	AdminKey         string        `mapstructure:"ADMIN_KEY"`
	SentimentURL     string        `mapstructure:"SENTIMENT_URL"`
	CORSAllowed      string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepWorkers     int           `mapstructure:"SWEEP_WORKERS"`
	CrisisExponent   float64       `mapstructure:"CRISIS_EXPONENT"`
	CrisisPopulation string        `mapstructure:"CRISIS_POPULATION"`
	EpochYear        int           `mapstructure:"EPOCH_YEAR"`
	FoldOnReopen     bool          `mapstructure:"FOLD_ON_REOPEN"`
	ConflictRetries  int           `mapstructure:"CONFLICT_RETRIES"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	// Legacy cadence was one minute, far too hot for a full recompute.
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_WORKERS", 4)
	v.SetDefault("CRISIS_EXPONENT", 0.4)
	v.SetDefault("CRISIS_POPULATION", "global")
	v.SetDefault("EPOCH_YEAR", 2018)
	v.SetDefault("FOLD_ON_REOPEN", true)
	v.SetDefault("CONFLICT_RETRIES", 3)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
