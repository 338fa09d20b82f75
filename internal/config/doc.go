// Package config loads and validates the AutoPrint configuration file.
//
// Configuration lives at ~/.config/autoprint/config.toml by default, with
// autoprint.toml in the working directory as a development fallback. Missing
// files are not an error: defaults cover everything except the printer name,
// which falls back to the system default destination.
package config
