// Package config initializes the application's configuration. It uses the
// Viper library to read settings from a config file, environment variables,
// and command-line flags, providing a unified configuration system.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultUserAgent mimics a desktop browser; the site serves challenge
// pages to anything that looks like a bot client.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and
// enables reading from environment variables. Designed to be called once
// at startup via cobra.OnInitialize.
func InitConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/bookcrawler/")
	viper.AddConfigPath("$HOME/.bookcrawler")

	viper.SetDefault("db.path", "books.sqlite")

	viper.SetDefault("crawler.base_url", "https://www.litres.ru/")
	viper.SetDefault("crawler.method", "catalog")
	viper.SetDefault("crawler.max_pages_per_genre", 50)
	viper.SetDefault("crawler.user_agent", DefaultUserAgent)
	viper.SetDefault("crawler.min_delay", "500ms")
	viper.SetDefault("crawler.max_delay", "1500ms")
	viper.SetDefault("crawler.retries", 4)
	viper.SetDefault("crawler.workers", 5)

	viper.SetDefault("http.timeout", "30s")

	viper.SetDefault("export.out", "books.xlsx")

	viper.SetDefault("metrics.addr", "")

	viper.SetDefault("log.development", false)

	// e.g. BOOKCRAWLER_CRAWLER_WORKERS=10
	viper.SetEnvPrefix("BOOKCRAWLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine: defaults, env vars, and flags carry
	// the full configuration.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "error reading config file: %v\n", err)
		}
	}
}
