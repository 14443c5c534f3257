// Package config handles application configuration loading and validation.
//
// Configuration is loaded from a YAML file and validated using struct tags.
// A small set of QUIETROUTE_* environment variables override file values so
// deployments can repoint the upstream feed without editing the file.
// Credentials are not part of the file or the environment; the embedder sets
// them on AppConfig directly.
package config
