package sync

import (
	"github.com/tidwall/gjson"
)

const (
	// PrimaryKey identifies a record and orders pages.
	PrimaryKey = "_id"
	// CursorField holds the last modification time of a record.
	CursorField = "updatedAt"
)

// Record is one JSON object from the "data" array of a page.
// The raw JSON is kept so records can be forwarded without re-encoding.
type Record struct {
	data gjson.Result
}

// ParseRecord wraps a raw JSON object.
func ParseRecord(raw string) Record {
	return Record{data: gjson.Parse(raw)}
}

func (r Record) StringForPath(path string) (string, bool) {
	result := r.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (r Record) IntForPath(path string) (int64, bool) {
	result := r.data.Get(path)
	return result.Int(), result.Exists() && (result.Value() != nil)
}

func (r Record) BoolForPath(path string) (bool, bool) {
	result := r.data.Get(path)
	return result.Bool(), result.Exists() && (result.Value() != nil)
}

// ID returns the record's primary key and whether it is present and non-null.
func (r Record) ID() (string, bool) {
	return r.StringForPath(PrimaryKey)
}

// UpdatedAt returns the cursor field and whether it is present and non-null.
func (r Record) UpdatedAt() (string, bool) {
	return r.StringForPath(CursorField)
}

// Raw returns the record exactly as received (after sanitizing).
func (r Record) Raw() string {
	return r.data.Raw
}

func (r Record) Data() map[string]interface{} {
	if v := r.data.Value(); v != nil {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}
