package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"raffle-backend/internal/features/raffle/models"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Debug    bool   `env:"DEBUG" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:""`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	// Архив розыгрышей выключен, если DB_HOST не задан
	Postgres struct {
		Host            string        `env:"DB_HOST" envDefault:""`
		Port            int           `env:"DB_PORT" envDefault:"5432"`
		User            string        `env:"DB_USER" envDefault:"postgres"`
		Password        string        `env:"DB_PASSWORD" envDefault:""`
		Database        string        `env:"DB_NAME" envDefault:"raffle"`
		SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
		MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
		MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
		AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	}

	Telegram struct {
		BotToken    string        `env:"BOT_TOKEN,required,notEmpty"`
		AdminIDs    []int64       `env:"ADMIN_IDS" envSeparator:","`
		ChannelID   string        `env:"CHANNEL_ID" envDefault:""`
		InitDataTTL time.Duration `env:"INIT_DATA_TTL" envDefault:"24h"`
	}

	Raffle struct {
		Denominations             []int         `env:"RAFFLE_DENOMINATIONS" envSeparator:"," envDefault:"100,200,300"`
		PoolSize                  int           `env:"RAFFLE_POOL_SIZE" envDefault:"100"`
		Rewards                   string        `env:"RAFFLE_REWARDS" envDefault:"100:5000/2000/1000;200:10000/4000/2000;300:15000/6000/3000"`
		LoyaltyThreshold          int           `env:"RAFFLE_LOYALTY_THRESHOLD" envDefault:"10"`
		ReferralThreshold         int           `env:"RAFFLE_REFERRAL_THRESHOLD" envDefault:"10"`
		ReferralBonusDenomination int           `env:"RAFFLE_REFERRAL_BONUS_DENOMINATION" envDefault:"200"`
		MinDrawEntries            int           `env:"RAFFLE_MIN_DRAW_ENTRIES" envDefault:"3"`
		WinnersPerDraw            int           `env:"RAFFLE_WINNERS_PER_DRAW" envDefault:"3"`
		ReconcileInterval         time.Duration `env:"RAFFLE_RECONCILE_INTERVAL" envDefault:"1m"`
		StoreDriver               string        `env:"RAFFLE_STORE" envDefault:"redis"`
	}

	Payment struct {
		Bank          string `env:"PAYMENT_BANK" envDefault:""`
		AccountNumber string `env:"PAYMENT_ACCOUNT_NUMBER" envDefault:""`
		AccountName   string `env:"PAYMENT_ACCOUNT_NAME" envDefault:""`
		Note          string `env:"PAYMENT_NOTE" envDefault:""`
	}
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// Файл .env необязателен: в production переменные задаются напрямую
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	switch cfg.Raffle.StoreDriver {
	case StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown RAFFLE_STORE %q", cfg.Raffle.StoreDriver)
	}
	if _, err := cfg.Settings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Settings converts the raffle section into validated engine settings.
func (c *Config) Settings() (models.Settings, error) {
	rewards, err := ParseRewards(c.Raffle.Rewards)
	if err != nil {
		return models.Settings{}, err
	}
	s := models.Settings{
		Denominations:             c.Raffle.Denominations,
		PoolSize:                  c.Raffle.PoolSize,
		Rewards:                   rewards,
		LoyaltyThreshold:          c.Raffle.LoyaltyThreshold,
		ReferralThreshold:         c.Raffle.ReferralThreshold,
		ReferralBonusDenomination: c.Raffle.ReferralBonusDenomination,
		MinDrawEntries:            c.Raffle.MinDrawEntries,
		WinnersPerDraw:            c.Raffle.WinnersPerDraw,
	}
	if err := s.Validate(); err != nil {
		return models.Settings{}, fmt.Errorf("raffle settings: %w", err)
	}
	return s.Clone(), nil
}

func (c *Config) PaymentInstructions() models.PaymentInstructions {
	return models.PaymentInstructions{
		Bank:          c.Payment.Bank,
		AccountNumber: c.Payment.AccountNumber,
		AccountName:   c.Payment.AccountName,
		Note:          c.Payment.Note,
	}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Postgres.Database, c.Postgres.SSLMode)
}

func (c *Config) ArchiveEnabled() bool {
	return c.Postgres.Host != ""
}

// ParseRewards parses "100:5000/2000/1000;200:10000/4000/2000" into a prize table.
func ParseRewards(s string) (map[int][]int64, error) {
	rewards := make(map[int][]int64)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		den, prizes, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("reward entry %q: expected denomination:prizes", entry)
		}
		d, err := strconv.Atoi(strings.TrimSpace(den))
		if err != nil {
			return nil, fmt.Errorf("reward entry %q: %w", entry, err)
		}
		for _, p := range strings.Split(prizes, "/") {
			v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("reward entry %q: %w", entry, err)
			}
			if v < 0 {
				return nil, fmt.Errorf("reward entry %q: negative prize", entry)
			}
			rewards[d] = append(rewards[d], v)
		}
	}
	if len(rewards) == 0 {
		return nil, fmt.Errorf("no rewards configured")
	}
	return rewards, nil
}
