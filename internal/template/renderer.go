// internal/template/renderer.go
package template

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/models"
	"guestflow-engine/pkg/registry"
)

// Renderer produces message content from a template id and a payload
// snapshot. Implementations must be idempotent and side-effect-free.
type Renderer interface {
	Render(templateID string, payload map[string]interface{}) (models.RenderedMessage, error)
}

// RegistryRenderer renders {{var}} placeholders against the file-backed
// template registry, validating the payload against the template's JSON
// schema first when one is declared.
type RegistryRenderer struct {
	registry *registry.TemplateRegistry
}

func NewRegistryRenderer(reg *registry.TemplateRegistry) *RegistryRenderer {
	return &RegistryRenderer{registry: reg}
}

func (r *RegistryRenderer) Render(templateID string, payload map[string]interface{}) (models.RenderedMessage, error) {
	tmpl, ok := r.registry.Get(templateID)
	if !ok {
		return models.RenderedMessage{}, errors.NewTemplateNotFoundError(templateID)
	}

	if tmpl.Schema != nil {
		schemaLoader := gojsonschema.NewGoLoader(tmpl.Schema)
		documentLoader := gojsonschema.NewGoLoader(payload)

		result, err := gojsonschema.Validate(schemaLoader, documentLoader)
		if err != nil {
			return models.RenderedMessage{}, errors.NewTemplateRenderFailedError(templateID, err)
		}
		if !result.Valid() {
			var details []string
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			return models.RenderedMessage{}, errors.NewPayloadInvalidError(templateID, strings.Join(details, "; "))
		}
	}

	return models.RenderedMessage{
		Subject: substitute(tmpl.Subject, payload),
		Body:    substitute(tmpl.Body, payload),
	}, nil
}

// substitute replaces {{key}} placeholders with payload values. Unknown
// placeholders are left in place so missing data is visible downstream.
func substitute(tmpl string, payload map[string]interface{}) string {
	out := tmpl
	for key, value := range payload {
		placeholder := fmt.Sprintf("{{%s}}", key)
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", value))
	}
	return out
}
