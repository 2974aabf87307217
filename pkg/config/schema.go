package config

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	schemaVersion = "http://json-schema.org/draft-07/schema#"
	schemaID      = "https://hkweather.io/schemas/v1alpha1/assistant.json"
)

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// JSONSchema describes Duration as a Go duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     durationPattern,
		Description: `Go duration string such as "30s" or "5m"`,
	}
}

// metadataSchema covers the ObjectMeta fields a manifest is expected to set.
func metadataSchema() *jsonschema.Schema {
	stringMap := &jsonschema.Schema{Type: "object", AdditionalProperties: &jsonschema.Schema{Type: "string"}}
	props := jsonschema.NewProperties()
	props.Set("name", &jsonschema.Schema{Type: "string"})
	props.Set("namespace", &jsonschema.Schema{Type: "string"})
	props.Set("labels", stringMap)
	props.Set("annotations", stringMap)
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func newReflector() *jsonschema.Reflector {
	metaType := reflect.TypeOf(metav1.ObjectMeta{})
	return &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		FieldNameTag:               "yaml",
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == metaType {
				return metadataSchema()
			}
			return nil
		},
	}
}

// GenerateSchema reflects the JSON schema for AssistantConfig manifests.
func GenerateSchema() *jsonschema.Schema {
	s := newReflector().Reflect(&AssistantConfig{})
	s.Version = schemaVersion
	s.ID = schemaID
	s.Title = KindAssistantConfig
	s.Description = "Hong Kong weather assistant configuration"
	return s
}

// Schema returns the manifest schema as indented JSON.
func Schema() ([]byte, error) {
	return json.MarshalIndent(GenerateSchema(), "", "  ")
}
