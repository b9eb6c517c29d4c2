package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Command describes an allow-listed executable bound to a task name.
type Command struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// CommandFile is the layout of a commands.yaml (or .json) file.
type CommandFile struct {
	Commands []Command `yaml:"commands" json:"commands"`
}

// LoadCommands reads a commands file (YAML or JSON) and returns the commands
// by name. A missing file yields no commands.
func LoadCommands(path string) (map[string]Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Command{}, nil
		}
		return nil, fmt.Errorf("failed to read commands file: %w", err)
	}

	var file CommandFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	out := make(map[string]Command, len(file.Commands))
	for _, c := range file.Commands {
		if c.Name == "" || c.Command == "" {
			continue
		}
		out[c.Name] = c
	}
	return out, nil
}
