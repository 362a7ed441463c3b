package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk shape of a persona override. One file may
// replace the instruction text for one kind.
type overrideFile struct {
	Kind        string `yaml:"kind"`
	Instruction string `yaml:"instruction"`
}

// LoadOverrides replaces built-in instruction blocks with any *.yaml or
// *.yml files found in dir. A missing directory is not an error; a file
// naming an unknown kind is.
func (r *Registry) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading persona dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		var ov overrideFile
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		kind := Kind(strings.ToLower(strings.TrimSpace(ov.Kind)))
		if !validKind(kind) {
			return fmt.Errorf("%s: unknown persona kind %q", path, ov.Kind)
		}
		if strings.TrimSpace(ov.Instruction) == "" {
			return fmt.Errorf("%s: empty instruction", path)
		}

		r.instructions[kind] = ov.Instruction
	}

	return nil
}

func validKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
