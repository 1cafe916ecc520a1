// Package config loads the engine configuration from YAML with sane
// defaults for every field.
package config
