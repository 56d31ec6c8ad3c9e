// Package config loads the engine's operator-facing settings from a
// YAML file, the same shape the teacher's cmd/warren apply command
// uses for resource manifests, applied here to process configuration
// instead.
package config
