// Package config loads, normalizes, and validates cutline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CUTLINE_API_TOKEN and the AWS credential variables. The Config type
// centralizes every knob the daemon and CLI need: catalog location, storage
// backends for exports, proxies and archives, render worker limits, garbage
// collection policy, and notification sinks.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
