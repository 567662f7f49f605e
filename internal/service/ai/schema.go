package ai

import (
	"github.com/eino-contrib/jsonschema"
)

// CreateSchema derives the JSON schema the model must follow for v. Fields
// without omitempty are required; jsonschema_description and
// jsonschema:"enum=..." tags describe values.
func CreateSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return s
}
