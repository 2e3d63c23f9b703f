package descriptor

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and completing the service descriptor file.
type Loader struct {
	filePath string
}

// NewLoader creates a new descriptor loader.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the descriptor, fills in missing identity fields
// and persists the completed descriptor back to disk so the generated id
// survives restarts. Kind is the one field that cannot be invented and
// must be present in the file.
func (l *Loader) Load() (*Descriptor, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse service descriptor: %w", err)
	}
	if d.Kind == "" {
		return nil, fmt.Errorf("service descriptor %s has no kind", l.filePath)
	}

	changed := false
	if d.ID == "" {
		d.ID = uuid.NewString()
		changed = true
	}
	if d.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hostname: %w", err)
		}
		d.Host = host
		changed = true
	}

	if changed {
		if err := l.save(&d); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (l *Loader) save(d *Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode service descriptor: %w", err)
	}
	if err := os.WriteFile(l.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write service descriptor: %w", err)
	}
	return nil
}
