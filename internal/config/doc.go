// Package config handles configuration loading for gigs-gateway.
//
// # Configuration File
//
// Locations (in order):
//
//  1. Path from the --config flag
//  2. Path from GIGS_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/gigs/gateway.yaml
//  4. ~/.config/gigs/gateway.yaml
//
// Files ending in .toml are parsed as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  admin_secret: "${GIGS_ADMIN_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  addr: "0.0.0.0:8080"          # websocket, health and admin API
//	  allowed_origins: ["*.example.com"]
//
//	database:
//	  path: "/var/lib/gigs/gateway.db"
//
//	cache:
//	  redis_addr: "localhost:6379"  # optional identity cache
//	  ttl: "5m"
//
//	auth:
//	  admin_secret: "${GIGS_ADMIN_SECRET}"  # enables the admin API, >= 32 bytes
//	  lookup_timeout: "5s"                  # bound on credential lookups
//	  max_token_age: "0s"                   # 0 disables the freshness check
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
