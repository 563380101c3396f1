// Package config loads the Agiloft connection settings.
//
// Configuration is layered, highest precedence first:
//
//  1. AGILOFT_* environment variables
//  2. a YAML config file (config.yaml by default)
//  3. built-in defaults
//
// Validate checks the settings the configured auth method needs before any
// network call is made, and Credentials maps the auth method to the matching
// session credentials variant.
package config
