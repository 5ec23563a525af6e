// Package config handles loading and validating the IoT core configuration.
//
// Configuration is resolved in three layers: hardcoded defaults, the YAML
// file, then GRAYLOGIC_* environment variables. Validate reports every
// problem at once so operators can fix a config file in a single pass.
//
// Sensitive values (MQTT password, InfluxDB token, JWT secret) should be set
// via environment variables rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc := cfg.Location() // schedule evaluation zone
package config
