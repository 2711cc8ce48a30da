package sync

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// RecordsField is the top-level response field holding the page's records.
const RecordsField = "data"

// PaginationToken carries the last primary key of the previous page as the
// raw JSON it arrived in, so numeric ids are sent back as numbers.
// A nil token means "first page" when building a request and
// "no more pages" when returned from a decoded page.
type PaginationToken struct {
	LastID json.RawMessage `json:"last_id"`
}

// Page is the outcome of decoding one response body.
type Page struct {
	Records    []Record
	Cursor     string // high-water-mark after this page
	LastSeenID string
	Final      bool
	Removed    int // characters stripped by Clean

	lastID json.RawMessage
}

// NextToken returns the token for the following request, or nil after the final page.
func (p Page) NextToken() *PaginationToken {
	if p.Final {
		return nil
	}
	return &PaginationToken{LastID: p.lastID}
}

// DecodePage sanitizes and parses a response body, advancing cursor to the
// greatest non-null updatedAt seen. Records arrive ordered by _id, not by
// updatedAt, so every record is compared.
//
// A body that cannot be parsed yields zero records, the unchanged cursor and
// a *DecodeError; the caller decides whether to retry.
func DecodePage(raw string, cursor string, pageSize int) (Page, error) {
	clean, removed := CleanCount(raw)
	result := Page{Cursor: cursor, Removed: removed}

	if !gjson.Valid(clean) {
		return result, &DecodeError{Reason: "invalid json response"}
	}
	data := gjson.Parse(clean).Get(RecordsField)
	if data.Exists() && data.Type != gjson.Null && !data.IsArray() {
		return result, &DecodeError{Reason: fmt.Sprintf("%q is not an array", RecordsField)}
	}

	var records []Record
	var lastID string
	var lastRawID json.RawMessage
	var decodeErr error
	data.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			decodeErr = &DecodeError{Reason: fmt.Sprintf("record %d is not an object", len(records))}
			return false
		}
		record := Record{data: value}
		id, ok := record.ID()
		if !ok {
			decodeErr = &DecodeError{Reason: fmt.Sprintf("record %d has no %s", len(records), PrimaryKey)}
			return false
		}
		records = append(records, record)
		lastID = id
		lastRawID = json.RawMessage(value.Get(PrimaryKey).Raw)
		return true
	})
	if decodeErr != nil {
		return result, decodeErr
	}

	highWaterMark := cursor
	for _, record := range records {
		if updatedAt, ok := record.UpdatedAt(); ok && updatedAt > highWaterMark {
			highWaterMark = updatedAt
		}
	}

	result.Records = records
	result.Cursor = highWaterMark
	result.LastSeenID = lastID
	result.lastID = lastRawID
	result.Final = len(records) < pageSize
	return result, nil
}
