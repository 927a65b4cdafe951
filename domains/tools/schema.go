package tools

import (
	"reflect"
	"strings"
	"time"
)

// Schema is the subset of JSON Schema used to describe tool arguments and
// results.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Description          string             `json:"description,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

var timeType = reflect.TypeFor[time.Time]()

// schemaFor describes T. Struct fields without omitempty are required; input
// schemas additionally reject unknown properties.
func schemaFor[T any](input bool) *Schema {
	return schemaOf(reflect.TypeFor[T](), input)
}

func schemaOf(t reflect.Type, input bool) *Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return &Schema{Type: "string", Format: "date-time"}
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: schemaOf(t.Elem(), input)}
	case reflect.Struct:
		return structSchema(t, input)
	default:
		return &Schema{}
	}
}

func structSchema(t reflect.Type, input bool) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	if input {
		closed := false
		s.AdditionalProperties = &closed
	}

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitempty, ok := jsonName(f)
		if !ok {
			continue
		}

		prop := schemaOf(f.Type, input)
		prop.Description = f.Tag.Get("desc")
		if enum := f.Tag.Get("enum"); enum != "" {
			prop.Enum = strings.Split(enum, ",")
		}
		s.Properties[name] = prop
		if !omitempty {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func jsonName(f reflect.StructField) (name string, omitempty, ok bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" || opt == "omitzero" {
			omitempty = true
		}
	}
	return name, omitempty, true
}
