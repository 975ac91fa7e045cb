package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; route changes are
// reported so the caller can ask for a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EnvAdminsChanged bool
	AddedEnvAdmins   []string
	RemovedEnvAdmins []string

	// RoutesChanged is true if any route declaration differs. The route
	// table is immutable for the process lifetime.
	RoutesChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Operator seed list
	for _, id := range new.Discord.EnvAdminIDs {
		if !slices.Contains(old.Discord.EnvAdminIDs, id) {
			d.AddedEnvAdmins = append(d.AddedEnvAdmins, id)
		}
	}
	for _, id := range old.Discord.EnvAdminIDs {
		if !slices.Contains(new.Discord.EnvAdminIDs, id) {
			d.RemovedEnvAdmins = append(d.RemovedEnvAdmins, id)
		}
	}
	d.EnvAdminsChanged = len(d.AddedEnvAdmins) > 0 || len(d.RemovedEnvAdmins) > 0

	// Routes
	d.RoutesChanged = !reflect.DeepEqual(old.Routes, new.Routes)

	return d
}
