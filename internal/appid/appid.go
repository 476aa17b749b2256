// Package appid holds the application identity shared by the CLI, config
// discovery and telemetry.
package appid

import "strings"

// Identity names the application on disk, in the environment and in telemetry.
type Identity struct {
	BinaryName         string
	ConfigName         string
	EnvPrefix          string
	Vendor             string
	Description        string
	TelemetryNamespace string
}

var current = Identity{
	BinaryName:         "lingualens",
	ConfigName:         "lingualens",
	EnvPrefix:          "LINGUALENS_",
	Vendor:             "lingualens",
	Description:        "Quota-aware client for the LinguaLens multilingual NLP API",
	TelemetryNamespace: "lingualens",
}

// Get returns the application identity.
func Get() Identity {
	return current
}

// EnvPrefix returns the environment prefix with a trailing underscore.
func EnvPrefix() string {
	prefix := current.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}
