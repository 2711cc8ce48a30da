package protocol

import "github.com/homemade/hubble/sync"

type MessageType string

const (
	LogMessage              MessageType = "LOG"
	ConnectionStatusMessage MessageType = "CONNECTION_STATUS"
	StateMessage            MessageType = "STATE"
	RecordMessage           MessageType = "RECORD"
	CatalogMessage          MessageType = "CATALOG"
)

type ConnectionStatus string

const (
	ConnectionSucceeded ConnectionStatus = "SUCCEEDED"
	ConnectionFailed    ConnectionStatus = "FAILED"
)

// Message is one line of connector output. Records are not listed here:
// they are written by splicing the raw record JSON, see Emitter.Records.
type Message struct {
	Type             MessageType       `json:"type"`
	Log              *Log              `json:"log,omitempty"`
	ConnectionStatus *StatusRow        `json:"connectionStatus,omitempty"`
	State            *StateMessageBody `json:"state,omitempty"`
	Catalog          *Catalog          `json:"catalog,omitempty"`
}

type Log struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatusRow struct {
	Status  ConnectionStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

type StateMessageBody struct {
	Stream string     `json:"stream"`
	Data   sync.State `json:"data"`
}

type Catalog struct {
	Streams []CatalogStream `json:"streams"`
}

// CatalogStream describes one stream for discovery.
type CatalogStream struct {
	Name                    string      `json:"name"`
	JSONSchema              sync.Schema `json:"json_schema"`
	SupportedSyncModes      []string    `json:"supported_sync_modes"`
	SourceDefinedCursor     bool        `json:"source_defined_cursor"`
	DefaultCursorField      []string    `json:"default_cursor_field"`
	SourceDefinedPrimaryKey [][]string  `json:"source_defined_primary_key"`
}

// NewCatalogStream describes an incremental stream keyed by _id with
// updatedAt as its cursor.
func NewCatalogStream(name string, schema sync.Schema) CatalogStream {
	return CatalogStream{
		Name:                    name,
		JSONSchema:              schema,
		SupportedSyncModes:      []string{"full_refresh", "incremental"},
		SourceDefinedCursor:     true,
		DefaultCursorField:      []string{sync.CursorField},
		SourceDefinedPrimaryKey: [][]string{{sync.PrimaryKey}},
	}
}
