package protocol

import (
	"bytes"
	"fmt"
	"io"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/homemade/hubble/sync"
	"github.com/tidwall/sjson"
)

// recordEnvelope is filled in with sjson so record data is copied verbatim.
const recordEnvelope = `{"type":"RECORD","record":{}}`

// Emitter writes JSON-lines messages. It implements sync.Sink and is safe for
// concurrent use by several streams; each call writes whole lines at once.
type Emitter struct {
	mu     gosync.Mutex
	w      io.Writer
	now    func() time.Time
	states map[string]sync.State
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:      w,
		now:    time.Now,
		states: make(map[string]sync.State),
	}
}

func (e *Emitter) write(b []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.w.Write(b)
	return err
}

func (e *Emitter) emit(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message %w", msg.Type, err)
	}
	return e.write(append(b, '\n'))
}

// Records writes one RECORD line per record, all in a single write.
func (e *Emitter) Records(stream string, records []sync.Record) error {
	emittedAt := e.now().UnixMilli()
	var buf bytes.Buffer
	for _, r := range records {
		line, err := sjson.SetBytes([]byte(recordEnvelope), "record.stream", stream)
		if err == nil {
			line, err = sjson.SetBytes(line, "record.emitted_at", emittedAt)
		}
		if err == nil {
			line, err = sjson.SetRawBytes(line, "record.data", []byte(r.Raw()))
		}
		if err != nil {
			return fmt.Errorf("failed to encode record for stream %s %w", stream, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		return nil
	}
	return e.write(buf.Bytes())
}

// Checkpoint writes a STATE message and remembers it for States.
func (e *Emitter) Checkpoint(stream string, state sync.State) error {
	if err := e.emit(Message{
		Type:  StateMessage,
		State: &StateMessageBody{Stream: stream, Data: state},
	}); err != nil {
		return err
	}
	e.mu.Lock()
	e.states[stream] = state
	e.mu.Unlock()
	return nil
}

// States returns a copy of every state checkpointed so far.
func (e *Emitter) States() map[string]sync.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make(map[string]sync.State, len(e.states))
	for k, v := range e.states {
		result[k] = v
	}
	return result
}

func (e *Emitter) Log(level string, message string) error {
	return e.emit(Message{Type: LogMessage, Log: &Log{Level: level, Message: message}})
}

func (e *Emitter) ConnectionStatus(ok bool, message string) error {
	status := ConnectionSucceeded
	if !ok {
		status = ConnectionFailed
	}
	return e.emit(Message{
		Type:             ConnectionStatusMessage,
		ConnectionStatus: &StatusRow{Status: status, Message: message},
	})
}

func (e *Emitter) Catalog(streams []CatalogStream) error {
	return e.emit(Message{Type: CatalogMessage, Catalog: &Catalog{Streams: streams}})
}
