// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// ServerConfig is the YAML shape of the optional uran config file. Flags and
// env vars take precedence over file values.
type ServerConfig struct {
	Bind            string            `yaml:"bind,omitempty"`
	Log             string            `yaml:"log,omitempty"`
	Dev             bool              `yaml:"dev,omitempty"`
	DevUserID       string            `yaml:"dev_user_id,omitempty"`
	DataDir         string            `yaml:"data_dir,omitempty"`
	Metrics         *bool             `yaml:"metrics,omitempty"`
	ShutdownSeconds int               `yaml:"shutdown_seconds,omitempty"`
	Storage         StorageConfig     `yaml:"storage,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
}

// StorageConfig bounds the SQLite database.
type StorageConfig struct {
	MaxBytes int64 `yaml:"max_bytes,omitempty"`
}
