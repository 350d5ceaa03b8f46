// Package config handles configuration loading for switchboard.
//
// # Configuration File
//
// Lookup order when no --config flag is given:
//
//  1. Path from SWITCHBOARD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/switchboard/config.yaml
//  3. ~/.config/switchboard/config.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	assistant:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	polling:
//	  max_wait: "30s"
//	  check_interval: "2s"
//
// Missing values fall back to the Default* constants.
package config
