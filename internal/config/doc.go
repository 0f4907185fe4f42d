// Package config loads, validates, and fingerprints the TOML configuration
// for corpus builds. Secrets are never stored in the file; only environment
// variable names are configured.
package config
