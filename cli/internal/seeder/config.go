package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Config controls how much fake feed data is generated.
type Config struct {
	Lotteries         int           `mapstructure:"lotteries" yaml:"lotteries"`
	TicketsPerLottery int           `mapstructure:"tickets_per_lottery" yaml:"tickets_per_lottery"`
	Types             []string      `mapstructure:"types" yaml:"types"`
	DrawIn            time.Duration `mapstructure:"draw_in" yaml:"draw_in"`
	WinnerPercent     float64       `mapstructure:"winner_percent" yaml:"winner_percent"`
	// Seed makes the generated data reproducible. Zero picks a random seed.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// LoadConfig loads configuration with cascade: ./seeder.yaml > ~/.drawctl/seeder.yaml > defaults
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("seeder")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SEEDER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".drawctl"))
		}
	}

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lotteries", 3)
	v.SetDefault("tickets_per_lottery", 100)
	v.SetDefault("types", []string{"daily_fixed", "daily_dynamic", "jackpot", "supertour"})
	v.SetDefault("draw_in", "1m")
	v.SetDefault("winner_percent", 0.05)
	v.SetDefault("seed", 0)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Lotteries <= 0 {
		return fmt.Errorf("lotteries must be positive, got %d", c.Lotteries)
	}
	if c.TicketsPerLottery < 0 {
		return fmt.Errorf("tickets_per_lottery must not be negative, got %d", c.TicketsPerLottery)
	}
	if c.WinnerPercent < 0 || c.WinnerPercent > 1 {
		return fmt.Errorf("winner_percent must be within [0,1], got %v", c.WinnerPercent)
	}
	if len(c.Types) == 0 {
		return errors.New("at least one lottery type is required")
	}
	for i, t := range c.Types {
		lt, err := model.ParseLotteryType(t)
		if err != nil {
			return err
		}
		c.Types[i] = string(lt)
	}
	return nil
}
