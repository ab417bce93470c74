// SPDX-License-Identifier: AGPL-3.0-or-later

package configloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uran-qa/uran/internal/paths"
	"github.com/uran-qa/uran/internal/types"
)

// LoadServerConfig reads the optional YAML config file. A missing file is
// not an error; it yields a zero config so flags and defaults apply.
func LoadServerConfig(path string) (*types.ServerConfig, error) {
	if path == "" {
		path = paths.DataPath("config.yaml")
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &types.ServerConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg types.ServerConfig
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Resolve data directory precedence: explicit value in config > config
	// env map > process env > platform default.
	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" && cfg.Env != nil {
		if val, ok := cfg.Env["DATA_DIR"]; ok && strings.TrimSpace(val) != "" {
			dataDir = strings.TrimSpace(val)
		}
	}
	if dataDir == "" {
		if env := os.Getenv("DATA_DIR"); env != "" {
			dataDir = env
		}
	}
	if dataDir != "" {
		paths.SetDataDirOverride(dataDir)
	}
	cfg.DataDir = paths.DataDir()

	return &cfg, nil
}
