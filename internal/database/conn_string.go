package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/offerwatch/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode credentials to handle special characters
	user := url.QueryEscape(cfg.User)
	password := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user,
		password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}
