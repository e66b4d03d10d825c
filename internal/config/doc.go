// Package config provides configuration loading and validation for the live streaming client.
// It handles YAML-based configuration with per-section validation, layered over defaults,
// with .env files and GLADIA_* environment variables applied on top.
package config
