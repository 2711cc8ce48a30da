package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
)

// FieldDocRow represents a single row in the field documentation.
type FieldDocRow struct {
	FieldName string // top-level record field, e.g. "updatedAt"
	FieldType string // human-readable type, e.g. "Text", "Whole number"
	Format    string // JSON schema format hint, e.g. "date-time"
	IsBase    bool   // whether the field is part of every stream's schema
	Notes     string
}

// FieldDocumentation describes the fields of one stream's schema.
type FieldDocumentation struct {
	Stream string
	Rows   []FieldDocRow
}

// GenerateFieldDocumentation documents every property of schema.
// Base fields come first, then the rest alphabetically.
func GenerateFieldDocumentation(stream string, schema Schema) FieldDocumentation {
	doc := FieldDocumentation{
		Stream: stream,
		Rows:   []FieldDocRow{},
	}
	base := BaseSchema().Properties

	for _, name := range sortedKeys(schema.Properties) {
		property := schema.Properties[name]
		_, isBase := base[name]
		doc.Rows = append(doc.Rows, FieldDocRow{
			FieldName: name,
			FieldType: describeType(property.Type),
			Format:    property.Format,
			IsBase:    isBase,
			Notes:     fieldNotes(name, property),
		})
	}

	sort.SliceStable(doc.Rows, func(i, j int) bool {
		if doc.Rows[i].IsBase != doc.Rows[j].IsBase {
			return doc.Rows[i].IsBase
		}
		return doc.Rows[i].FieldName < doc.Rows[j].FieldName
	})

	return doc
}

// sortedKeys returns the keys of properties in sorted order.
func sortedKeys(properties map[string]Property) []string {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// describeType names the non-null member of a nullable type.
func describeType(t PropertyType) string {
	for _, name := range t {
		switch name {
		case TypeBoolean:
			return "Boolean"
		case TypeInteger:
			return "Whole number"
		case TypeNumber:
			return "Decimal number"
		case TypeString:
			return "Text"
		case TypeArray:
			return "List"
		case TypeObject:
			return "Object"
		}
	}
	if len(t) == 0 {
		return "Any"
	}
	return "Null"
}

func fieldNotes(name string, property Property) string {
	notes := []string{}
	switch name {
	case PrimaryKey:
		notes = append(notes, "Primary key")
	case CursorField:
		notes = append(notes, "Cursor field")
	}
	if property.Format == FormatDateTime {
		notes = append(notes, "Looks like a timestamp")
	}
	if len(property.Type) == 1 && property.Type[0] == TypeNull {
		notes = append(notes, "Only null values seen when sampled")
	}
	return strings.Join(notes, " | ")
}

// FormatCSV formats the field documentation as CSV.
func (d FieldDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Stream: %s", d.Stream)}); err != nil {
		return "", err
	}
	if err := writer.Write([]string{"Field Name", "Base Field", "Field Type", "Format", "Notes"}); err != nil {
		return "", err
	}

	for _, row := range d.Rows {
		baseMark := ""
		if row.IsBase {
			baseMark = "yes"
		}
		if err := writer.Write([]string{row.FieldName, baseMark, row.FieldType, row.Format, row.Notes}); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
