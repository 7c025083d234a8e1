package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup. Values come from a
// yaml file when one is provided, with environment variables filling in
// database settings the file leaves out (Docker friendly).
type Config struct {
	ListenAddr string
	APIToken   string
	DBConnStr  string
	Rates      []ConfiguredRate
}

// ConfiguredRate is a static exchange rate loaded into the rate table at
// startup.
type ConfiguredRate struct {
	From        string
	To          string
	Rate        decimal.Decimal
	EffectiveAt time.Time
}

type configTmp struct {
	ListenAddr string `yaml:"listen_addr"`
	APIToken   string `yaml:"api_token"`
	Database   struct {
		ConnStr  string `yaml:"conn_str"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`
	Rates []rateTmp `yaml:"rates"`
}

type rateTmp struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Rate        string `yaml:"rate"`
	EffectiveAt string `yaml:"effective_at"`
}

// Get loads configuration from the yaml file at path, or entirely from the
// environment when path is empty.
func Get(path string) (*Config, error) {
	var tmp configTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr: firstNonEmpty(tmp.ListenAddr, os.Getenv("LISTEN_ADDR"), ":8080"),
		APIToken:   firstNonEmpty(tmp.APIToken, os.Getenv("API_TOKEN"), "dev-token"),
		DBConnStr:  buildDBConnStr(tmp),
	}

	for _, r := range tmp.Rates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("incorrect 'rate' param in yaml config: %s, error: %w", r.Rate, err)
		}
		effectiveAt, err := time.Parse(time.RFC3339, r.EffectiveAt)
		if err != nil {
			return nil, fmt.Errorf("incorrect 'effective_at' param in yaml config: %s, error: %w", r.EffectiveAt, err)
		}
		cfg.Rates = append(cfg.Rates, ConfiguredRate{
			From:        r.From,
			To:          r.To,
			Rate:        rate,
			EffectiveAt: effectiveAt,
		})
	}

	return cfg, nil
}

func buildDBConnStr(tmp configTmp) string {
	if tmp.Database.ConnStr != "" {
		return tmp.Database.ConnStr
	}
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}

	host := firstNonEmpty(tmp.Database.Host, os.Getenv("DB_HOST"), "localhost")
	port := firstNonEmpty(tmp.Database.Port, os.Getenv("DB_PORT"), "5432")
	user := firstNonEmpty(tmp.Database.User, os.Getenv("DB_USER"), "postgres")
	password := firstNonEmpty(tmp.Database.Password, os.Getenv("DB_PASSWORD"), "postgres")
	name := firstNonEmpty(tmp.Database.Name, os.Getenv("DB_NAME"), "goalflow")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
