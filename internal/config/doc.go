// Package config loads the admin tool configuration: built-in defaults, an
// optional YAML file, then KINETIC_* environment overrides, then validation.
//
// The simulator has its own configuration in package sim.
package config
