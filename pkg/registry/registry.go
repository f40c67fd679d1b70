// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"guestflow-engine/internal/models"
)

// TemplateRegistry is the file-backed catalogue of message templates the
// renderer draws from.
type TemplateRegistry struct {
	Version   string                   `json:"version"`
	Templates []models.MessageTemplate `json:"templates"`

	byID map[string]models.MessageTemplate
}

// LoadRegistry reads and indexes the template registry at path.
func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}

	reg.byID = make(map[string]models.MessageTemplate, len(reg.Templates))
	for _, tmpl := range reg.Templates {
		if tmpl.ID == "" {
			return nil, fmt.Errorf("registry %s: template with empty id", path)
		}
		if _, dup := reg.byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("registry %s: duplicate template id %q", path, tmpl.ID)
		}
		reg.byID[tmpl.ID] = tmpl
	}

	return &reg, nil
}

// Get returns the template with the given id.
func (r *TemplateRegistry) Get(id string) (models.MessageTemplate, bool) {
	tmpl, ok := r.byID[id]
	return tmpl, ok
}
