package sync

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"

	FormatDateTime = "date-time"

	jsonSchemaDraft = "http://json-schema.org/draft-07/schema#"
)

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// PropertyType is a JSON schema "type": a single name or a list of names.
type PropertyType []string

func (t PropertyType) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *PropertyType) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*t = PropertyType{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

func nullable(name string) PropertyType {
	return PropertyType{TypeNull, name}
}

// Property describes one field. An empty Property accepts anything.
type Property struct {
	Type                 PropertyType `json:"type,omitempty"`
	Format               string       `json:"format,omitempty"`
	Items                *Property    `json:"items,omitempty"`
	AdditionalProperties *bool        `json:"additionalProperties,omitempty"`
}

// Schema is the JSON schema published for a stream. Extra fields are always
// allowed so records may gain fields after the schema is frozen.
type Schema struct {
	Schema               string              `json:"$schema"`
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// BaseSchema is the schema of a stream before any record has been seen.
func BaseSchema() Schema {
	return Schema{
		Schema: jsonSchemaDraft,
		Type:   TypeObject,
		Properties: map[string]Property{
			PrimaryKey:  {Type: nullable(TypeString)},
			CursorField: {Type: nullable(TypeString)},
			"createdAt": {Type: nullable(TypeString)},
		},
		AdditionalProperties: true,
	}
}

// InferSchema describes every top-level field of a sample record.
func InferSchema(sample Record) map[string]Property {
	properties := make(map[string]Property)
	sample.data.ForEach(func(key, value gjson.Result) bool {
		properties[key.String()] = InferProperty(value)
		return true
	})
	return properties
}

// InferProperty maps one JSON value to a nullable property type.
func InferProperty(value gjson.Result) Property {
	switch value.Type {
	case gjson.Null:
		return Property{Type: PropertyType{TypeNull}}
	case gjson.True, gjson.False:
		return Property{Type: nullable(TypeBoolean)}
	case gjson.Number:
		if strings.ContainsAny(value.Raw, ".eE") {
			return Property{Type: nullable(TypeNumber)}
		}
		return Property{Type: nullable(TypeInteger)}
	case gjson.String:
		if datePrefix.MatchString(value.Str) {
			return Property{Type: nullable(TypeString), Format: FormatDateTime}
		}
		return Property{Type: nullable(TypeString)}
	case gjson.JSON:
		if value.IsArray() {
			return Property{Type: nullable(TypeArray), Items: &Property{}}
		}
		if value.IsObject() {
			open := true
			return Property{Type: nullable(TypeObject), AdditionalProperties: &open}
		}
	}
	return Property{Type: nullable(TypeString)}
}

// withProperties returns a copy of s with properties merged over its own.
func (s Schema) withProperties(properties map[string]Property) Schema {
	merged := make(map[string]Property, len(s.Properties)+len(properties))
	for k, v := range s.Properties {
		merged[k] = v
	}
	for k, v := range properties {
		merged[k] = v
	}
	s.Properties = merged
	return s
}
