// Package config loads, normalizes, and validates vidharvest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// such as VIDHARVEST_S3_SECRET_KEY and VIDHARVEST_FEED_PASSWORD. The Config
// type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
