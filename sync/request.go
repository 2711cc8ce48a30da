package sync

import "github.com/goccy/go-json"

// QueryBody is the POST body understood by the API's "find" method.
type QueryBody struct {
	Method string      `json:"$method"`
	Params QueryParams `json:"params"`
}

type QueryParams struct {
	Query Query `json:"query"`
}

type Query struct {
	Limit     int            `json:"$limit"`
	Sort      map[string]int `json:"$sort"`
	UpdatedAt *UpdatedSince  `json:"updatedAt,omitempty"`
	ID        *IDAfter       `json:"_id,omitempty"`
}

type UpdatedSince struct {
	GTE string `json:"$gte"`
}

// IDAfter holds the previous page's last _id verbatim: "2" stays a string
// and 2 stays a number.
type IDAfter struct {
	GT json.RawMessage `json:"$gt"`
}

// BuildRequest composes the query for the next page.
//
// Pages are always sorted by ascending _id and continued with _id > last id,
// never with an offset: records inserted while a scan is running cannot
// shift records that have not been read yet.
func BuildRequest(state CursorState, token *PaginationToken, pageSize int) QueryBody {
	query := Query{
		Limit: pageSize,
		Sort:  map[string]int{PrimaryKey: 1},
	}
	if state.CursorValue != "" {
		query.UpdatedAt = &UpdatedSince{GTE: state.CursorValue}
	}
	if token != nil {
		after := token.LastID
		if len(after) == 0 {
			after = json.RawMessage("null")
		}
		query.ID = &IDAfter{GT: after}
	}
	return QueryBody{
		Method: "find",
		Params: QueryParams{Query: query},
	}
}
