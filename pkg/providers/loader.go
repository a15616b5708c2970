package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadDir reads provider definition files from dir and its immediate
// subdirectories. A missing dir yields no definitions.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var defs []Definition
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !entry.IsDir() {
			def, ok, err := loadFile(path)
			if err != nil {
				return nil, err
			}
			if ok {
				defs = append(defs, def)
			}
			continue
		}

		nested, err := os.ReadDir(path)
		if err != nil {
			continue
		}
		for _, child := range nested {
			if child.IsDir() {
				continue
			}
			def, ok, err := loadFile(filepath.Join(path, child.Name()))
			if err != nil {
				return nil, err
			}
			if ok {
				defs = append(defs, def)
			}
		}
	}
	return defs, nil
}

func loadFile(path string) (Definition, bool, error) {
	if !isDefinitionFile(path) {
		return Definition{}, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("skipping unreadable provider definition", "path", path, "error", err)
		return Definition{}, false, nil
	}
	def, err := decodeDefinition(path, data)
	if err != nil {
		return Definition{}, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	def.Source = path
	return def, true, nil
}

// jsonDefinition mirrors the JSON documents other tools write, where the
// timeout is a duration string.
type jsonDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	Timeout     string            `json:"timeout"`
	Disabled    bool              `json:"disabled"`
}

func decodeDefinition(path string, data []byte) (Definition, error) {
	var def Definition
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		err := yaml.Unmarshal(data, &def)
		return def, err
	}

	var raw jsonDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return def, err
	}
	def.Name = raw.Name
	def.Description = raw.Description
	def.Command = raw.Command
	def.Args = raw.Args
	def.Env = raw.Env
	def.Disabled = raw.Disabled
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return def, fmt.Errorf("invalid timeout: %w", err)
		}
		def.Timeout = timeout
	}
	return def, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
