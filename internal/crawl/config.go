package crawl

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Discovery methods selectable via configuration.
const (
	MethodCatalog = "catalog"
	MethodSitemap = "sitemap"
)

// Config captures every configuration knob that influences a crawl run.
// All values originate from Viper so the crawler can be configured via
// files, env vars, or CLI flags.
type Config struct {
	DBPath           string
	BaseURL          string
	Method           string
	MaxPagesPerGenre int
	UserAgent        string
	Timeout          time.Duration
	MinDelay         time.Duration
	MaxDelay         time.Duration
	MaxRetries       int
	Workers          int
	MetricsAddr      string
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		DBPath:           v.GetString("db.path"),
		BaseURL:          v.GetString("crawler.base_url"),
		Method:           v.GetString("crawler.method"),
		MaxPagesPerGenre: v.GetInt("crawler.max_pages_per_genre"),
		UserAgent:        v.GetString("crawler.user_agent"),
		Timeout:          v.GetDuration("http.timeout"),
		MinDelay:         v.GetDuration("crawler.min_delay"),
		MaxDelay:         v.GetDuration("crawler.max_delay"),
		MaxRetries:       v.GetInt("crawler.retries"),
		Workers:          v.GetInt("crawler.workers"),
		MetricsAddr:      v.GetString("metrics.addr"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db.path must be set")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if c.Method != MethodCatalog && c.Method != MethodSitemap {
		return fmt.Errorf("crawler.method must be %q or %q, got %q", MethodCatalog, MethodSitemap, c.Method)
	}
	if c.MaxPagesPerGenre <= 0 {
		return fmt.Errorf("crawler.max_pages_per_genre must be > 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("crawler.min_delay must be >= 0")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("crawler.max_delay must be >= crawler.min_delay")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("crawler.retries must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	return nil
}
