// Package config handles configuration loading, parsing, and validation
// from environment variables, an optional .env file and an optional
// config.yaml. Every key can be overridden with a GENRELAY_ prefixed
// environment variable, e.g. GENRELAY_TASK_MAX_CONCURRENT.
package config
