package archetype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

// LoadDir reads every *.yaml / *.yml persona definition in dir, in file name order.
func LoadDir(dir string) ([]model.PersonaInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persona dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	inputs := make([]model.PersonaInput, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var in model.PersonaInput
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// RegisterDir loads and registers every persona in dir. It stops at the first invalid
// definition.
func (r *Registry) RegisterDir(dir string) (int, error) {
	inputs, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for i := range inputs {
		if _, err := r.Put(&inputs[i]); err != nil {
			return i, fmt.Errorf("register persona %q: %w", inputs[i].Name, err)
		}
	}
	return len(inputs), nil
}
