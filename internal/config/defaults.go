package config

import "github.com/spf13/viper"

// setDefaults sets defaults for everything the config file may omit.
// secret_key deliberately has no default.
func setDefaults(v *viper.Viper) {
	// database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "stustapay")
	v.SetDefault("database.dbname", "stustapay")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "15m")
	v.SetDefault("database.default_timeout", "30s")

	// API defaults
	v.SetDefault("terminal_api.host", "localhost")
	v.SetDefault("terminal_api.port", 8080)
	v.SetDefault("terminal_api.base_url", "http://localhost:8080")
	v.SetDefault("admin_api.host", "localhost")
	v.SetDefault("admin_api.port", 8081)
	v.SetDefault("admin_api.base_url", "http://localhost:8081")
	v.SetDefault("customer_api.host", "localhost")
	v.SetDefault("customer_api.port", 8082)
	v.SetDefault("customer_api.base_url", "http://localhost:8082")

	// core defaults
	v.SetDefault("core.test_mode", false)
	v.SetDefault("core.test_mode_message", "")
	v.SetDefault("core.request_timeout", "30s")

	// customer portal defaults
	v.SetDefault("customer_portal.allowed_country_codes", []string{"DE", "AT", "CH"})
	v.SetDefault("customer_portal.sepa.enabled", true)
	v.SetDefault("customer_portal.sepa.description", "StuStaPay payout {user_tag_uid}")

	// bon document store defaults
	v.SetDefault("bon.backend", "pebble")
	v.SetDefault("bon.path", "/var/lib/stustapay/bon")
	v.SetDefault("bon.compression", "lz4")
}
