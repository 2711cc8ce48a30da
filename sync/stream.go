package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Sink receives what a stream reads. A page's records are handed over
// before the stream advances its cursor past them.
type Sink interface {
	Records(stream string, records []Record) error
	Checkpoint(stream string, state State) error
}

// Stream reads one endpoint incrementally.
// A Stream is not safe for concurrent use; distinct streams share nothing.
type Stream struct {
	config   StreamConfig
	client   apiClient
	logger   *zap.Logger
	observer Observer
	policy   RetryPolicy

	cursor   CursorState
	phase    Phase
	inferred map[string]Property
}

// NewStream validates ep against the shared config and builds its stream.
func NewStream(sc SyncContext, ep Endpoint) (*Stream, error) {
	if sc.Config.APIToken == "" {
		return nil, configErrorf("api_token", "API Token is required")
	}
	cfg, err := NewStreamConfig(sc.Config, ep)
	if err != nil {
		return nil, err
	}
	return &Stream{
		config:   cfg,
		client:   newAPIClient(sc, cfg),
		logger:   sc.logger().With(zap.String("stream", cfg.Name)),
		observer: sc.observer(),
		policy:   sc.retryPolicy(cfg.MaxRetries),
		cursor:   CursorState{CursorValue: cfg.StartCursor},
		phase:    PhaseValidated,
	}, nil
}

// Streams builds a stream for every valid endpoint. Invalid endpoints are
// skipped with a warning; use Check to reject them instead.
func Streams(sc SyncContext) ([]*Stream, error) {
	if len(sc.Config.Endpoints) == 0 {
		return nil, configErrorf("endpoints", "No endpoints configured")
	}
	var result []*Stream
	for _, ep := range sc.Config.Endpoints {
		s, err := NewStream(sc, ep)
		if err != nil {
			var configErr *ConfigurationError
			if errors.As(err, &configErr) && configErr.Field == "api_token" {
				return nil, err
			}
			sc.logger().Warn("skipping endpoint",
				zap.String("name", ep.Name), zap.String("endpoint_url", ep.EndpointURL), zap.Error(err))
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (s *Stream) Name() string {
	return s.config.Name
}

func (s *Stream) Config() StreamConfig {
	return s.config
}

func (s *Stream) Phase() Phase {
	return s.phase
}

// Cursor returns a copy of the stream's position.
func (s *Stream) Cursor() CursorState {
	return s.cursor
}

// State is the position to persist between syncs.
func (s *Stream) State() State {
	return State{UpdatedAt: s.cursor.CursorValue}
}

// SetState restores a persisted position. An empty state restarts from the
// configured start date.
func (s *Stream) SetState(state State) {
	if state.UpdatedAt == "" {
		s.cursor.CursorValue = s.config.StartCursor
		return
	}
	s.cursor.CursorValue = state.UpdatedAt
}

// Schema returns the frozen schema, or the base schema if no record has been seen.
func (s *Stream) Schema() Schema {
	return BaseSchema().withProperties(s.inferred)
}

// inferSchema freezes the schema from the first record ever seen.
func (s *Stream) inferSchema(sample Record) {
	if s.inferred != nil {
		return
	}
	s.inferred = InferSchema(sample)
	s.observer.SchemaInferred(s.config.Name, len(s.inferred))
}

// Discover reads the first page from the current cursor and returns the
// resulting schema. Neither the cursor nor any sink is touched.
func (s *Stream) Discover(ctx context.Context) (Schema, error) {
	page, err := s.fetchPage(ctx, s.cursor.CursorValue, nil)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to discover stream %s %w", s.config.Name, err)
	}
	if len(page.Records) > 0 {
		s.inferSchema(page.Records[0])
	}
	return s.Schema(), nil
}

// Read runs one full scan from the current cursor and checkpoints the new
// cursor when the final page has been handed to sink.
//
// The updatedAt filter stays at the cursor the scan started from. The
// in-memory cursor advances with every committed page, but it is only
// checkpointed once the scan completes, since pages are ordered by _id and
// a partial scan has not yet seen every record newer than the start.
func (s *Stream) Read(ctx context.Context, sink Sink) error {
	s.cursor.LastSeenID = ""
	since := s.cursor.CursorValue
	var token *PaginationToken

	for {
		if err := ctx.Err(); err != nil {
			s.phase = PhaseTerminated
			return err
		}

		s.phase = PhaseRequest
		page, err := s.fetchPage(ctx, since, token)
		if err != nil {
			s.phase = PhaseFailed
			return fmt.Errorf("failed to read stream %s %w", s.config.Name, err)
		}

		s.phase = PhaseDecode
		if len(page.Records) > 0 {
			s.inferSchema(page.Records[0])
			if err := sink.Records(s.config.Name, page.Records); err != nil {
				s.phase = PhaseFailed
				return fmt.Errorf("failed to emit records for stream %s %w", s.config.Name, err)
			}
		}
		s.cursor.CursorValue = page.Cursor
		if page.LastSeenID != "" {
			s.cursor.LastSeenID = page.LastSeenID
		}
		s.observer.PageRead(s.config.Name, len(page.Records), page.Final)

		token = page.NextToken()
		if token == nil {
			break
		}

		s.phase = PhaseContinue
		if err := sleep(ctx, s.config.InterPageDelay); err != nil {
			s.phase = PhaseTerminated
			return err
		}
	}

	s.phase = PhaseDone
	if err := sink.Checkpoint(s.config.Name, s.State()); err != nil {
		s.phase = PhaseFailed
		return fmt.Errorf("failed to checkpoint stream %s %w", s.config.Name, err)
	}
	s.phase = PhaseTerminated
	return nil
}

// fetchPage requests and decodes one page, retrying per the stream's policy.
func (s *Stream) fetchPage(ctx context.Context, since string, token *PaginationToken) (Page, error) {
	body := BuildRequest(CursorState{CursorValue: since, LastSeenID: s.cursor.LastSeenID}, token, s.config.PageSize)
	policy := newPageBackOff(s.policy)

	var result Page
	operation := func() error {
		raw, err := s.client.post(ctx, body)
		if err == nil {
			var page Page
			page, err = DecodePage(raw, s.cursor.CursorValue, s.config.PageSize)
			if page.Removed > 0 {
				s.observer.Sanitized(s.config.Name, page.Removed)
			}
			if err != nil {
				s.observer.DecodeFailed(s.config.Name, err)
			} else {
				result = page
				return nil
			}
		}

		policy.record(err)
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.observer.RetryScheduled(s.config.Name, err, wait)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil && policy.exhausted {
		return result, fmt.Errorf("giving up after retries %w", err)
	}
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
