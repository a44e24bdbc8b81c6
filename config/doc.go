// Package config loads httpreq configuration with Viper.
//
// Values come from an optional YAML/JSON/TOML file, an optional .env file
// (loaded with godotenv) and environment variables carrying the configured
// prefix. Environment variables win over file values:
//
//	HTTPREQ_TRANSPORT_MAX_RETRIES=5  ->  transport.max_retries
//
// # Usage
//
//	var cfg Settings
//	err := config.Load(&cfg, config.WithConfigFile("httpreq.yml"))
package config
