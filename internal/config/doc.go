// Package config provides configuration loading and validation for the capture relay.
// Values come from built-in defaults, then an optional YAML file, then
// environment variables (a .env file in the working directory is honoured).
package config
