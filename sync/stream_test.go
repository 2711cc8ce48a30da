package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStream(t *testing.T, api *fakeAPI, obs Observer, mutate func(c *Config)) *Stream {
	t.Helper()
	sc := testSyncContext(api, obs)
	if mutate != nil {
		mutate(&sc.Config)
	}
	s, err := NewStream(sc, Endpoint{Name: "vacancies", EndpointURL: api.URL("vacancies")})
	require.NoError(t, err)
	return s
}

func pageSize(n int) func(c *Config) {
	return func(c *Config) {
		c.PageSize = n
	}
}

func TestStream_ReadTwoPages(t *testing.T) {
	api := newFakeAPI(t,
		testRecord{ID: "1", UpdatedAt: "2024-01-01"},
		testRecord{ID: "2", UpdatedAt: "2024-01-02"},
		testRecord{ID: "3", UpdatedAt: "2024-01-01"},
	)
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, pageSize(2))
	assert.Equal(t, PhaseValidated, s.Phase())

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))

	assert.Equal(t, []string{"1", "2", "3"}, sink.IDs())
	assert.Equal(t, []State{{UpdatedAt: "2024-01-02"}}, sink.checkpoints)
	assert.Equal(t, State{UpdatedAt: "2024-01-02"}, s.State())
	assert.Equal(t, CursorState{CursorValue: "2024-01-02", LastSeenID: "3"}, s.Cursor())
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Equal(t, 2, obs.pages)

	queries := api.Queries()
	require.Len(t, queries, 2)
	assert.Nil(t, queries[0].ID)
	require.NotNil(t, queries[1].ID)
	assert.JSONEq(t, `"2"`, string(queries[1].ID.GT))
	for _, q := range queries {
		assert.Equal(t, 2, q.Limit)
		assert.Equal(t, map[string]int{"_id": 1}, q.Sort)
		require.NotNil(t, q.UpdatedAt)
		assert.Equal(t, DefaultStartDate, q.UpdatedAt.GTE)
	}
}

func TestStream_ReadIncrementalFromState(t *testing.T) {
	api := newFakeAPI(t,
		testRecord{ID: "1", UpdatedAt: "2024-01-01"},
		testRecord{ID: "2", UpdatedAt: "2024-03-01"},
		testRecord{ID: "3", UpdatedAt: "2024-02-01"},
	)
	s := newTestStream(t, api, nil, nil)
	s.SetState(State{UpdatedAt: "2024-02-01"})

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, []string{"2", "3"}, sink.IDs())
	assert.Equal(t, "2024-03-01", s.State().UpdatedAt)

	// a second sync starts a fresh scan from the new cursor
	sink = &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, []string{"2"}, sink.IDs())
	queries := api.Queries()
	assert.Nil(t, queries[len(queries)-1].ID)
}

func TestStream_EmptyFirstPage(t *testing.T) {
	api := newFakeAPI(t)
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Empty(t, sink.records)
	assert.Equal(t, []State{{UpdatedAt: DefaultStartDate}}, sink.checkpoints)
	assert.Equal(t, 0, obs.schemas)
	assert.Equal(t, BaseSchema(), s.Schema())
}

func TestStream_SetState(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestStream(t, api, nil, func(c *Config) { c.StartDate = "2023-05-01T00:00:00.000Z" })
	assert.Equal(t, State{UpdatedAt: "2023-05-01T00:00:00.000Z"}, s.State())

	s.SetState(State{UpdatedAt: "2024-01-01T00:00:00.000Z"})
	assert.Equal(t, "2024-01-01T00:00:00.000Z", s.State().UpdatedAt)

	s.SetState(State{})
	assert.Equal(t, "2023-05-01T00:00:00.000Z", s.State().UpdatedAt)
}

func TestStream_SchemaFrozenAfterFirstPage(t *testing.T) {
	api := newFakeAPI(t,
		testRecord{ID: "1", UpdatedAt: "2024-01-01", Fields: `"title":"Engineer"`},
		testRecord{ID: "2", UpdatedAt: "2024-01-02", Fields: `"title":"Analyst","remote":true`},
		testRecord{ID: "3", UpdatedAt: "2024-01-03", Fields: `"salary":10.5`},
	)
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, pageSize(2))

	require.NoError(t, s.Read(context.Background(), &memorySink{}))
	require.NoError(t, s.Read(context.Background(), &memorySink{}))

	assert.Equal(t, 1, obs.schemas)
	schema := s.Schema()
	assert.Contains(t, schema.Properties, "title")
	assert.Equal(t, FormatDateTime, schema.Properties["updatedAt"].Format)
	assert.Contains(t, schema.Properties, "createdAt")
	assert.NotContains(t, schema.Properties, "remote")
	assert.NotContains(t, schema.Properties, "salary")
	assert.True(t, schema.AdditionalProperties)
}

func TestStream_Discover(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1", UpdatedAt: "2024-01-01", Fields: `"openings":3`})
	s := newTestStream(t, api, nil, nil)

	schema, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PropertyType{TypeNull, TypeInteger}, schema.Properties["openings"].Type)
	assert.Equal(t, DefaultStartDate, s.State().UpdatedAt)
	assert.Equal(t, PhaseValidated, s.Phase())
}

func TestStream_RetriesServerErrors(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1", UpdatedAt: "2024-01-01"})
	api.script(
		respondStatus(http.StatusServiceUnavailable, "try later"),
		respondStatus(http.StatusBadGateway, "bad gateway"),
	)
	reg := prometheus.NewRegistry()
	metrics := NewMetricsObserver(reg)
	obs := &countingObserver{}
	s := newTestStream(t, api, Observers{obs, metrics}, nil)

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, []string{"1"}, sink.IDs())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, obs.retries)
	assert.Len(t, api.Queries(), 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.retries.WithLabelValues("vacancies")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pages.WithLabelValues("vacancies")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues("vacancies")))
}

func TestStream_RateLimitHonoursRetryAfter(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1", UpdatedAt: "2024-01-01"})
	api.script(respondStatus(http.StatusTooManyRequests, "slow down", "Retry-After", "0"))
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, []time.Duration{0}, obs.retries)
	assert.Len(t, sink.records, 1)
}

func TestStream_NonRetryableStatusFailsImmediately(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1"})
	api.script(respondStatus(http.StatusForbidden, `{"message":"forbidden"}`))
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	err := s.Read(context.Background(), sink)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, `{"message":"forbidden"}`, statusErr.Body)
	assert.Len(t, api.Queries(), 1)
	assert.Empty(t, obs.retries)
	assert.Empty(t, sink.checkpoints)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, DefaultStartDate, s.State().UpdatedAt)
}

func TestStream_GivesUpAfterMaxRetries(t *testing.T) {
	api := newFakeAPI(t)
	for i := 0; i < 10; i++ {
		api.script(respondStatus(http.StatusInternalServerError, "boom"))
	}
	s := newTestStream(t, api, nil, func(c *Config) { c.MaxRetries = 2 })

	err := s.Read(context.Background(), &memorySink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Len(t, api.Queries(), 3)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestStream_RetriesMalformedPages(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1", UpdatedAt: "2024-01-01"})
	api.script(respondBody(`{"data":[{"_id":`))
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, 1, obs.decodeFailures)
	assert.Len(t, obs.retries, 1)
	assert.Equal(t, []string{"1"}, sink.IDs())
}

func TestStream_MalformedPagesNeverAdvanceCursor(t *testing.T) {
	api := newFakeAPI(t)
	for i := 0; i < TransientAttempts; i++ {
		api.script(respondBody(`{"data":[{"_id":"9","updatedAt":"2030-01-01"},`))
	}
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	err := s.Read(context.Background(), sink)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Len(t, api.Queries(), TransientAttempts)
	assert.Equal(t, TransientAttempts, obs.decodeFailures)
	assert.Empty(t, sink.records)
	assert.Empty(t, sink.checkpoints)
	assert.Equal(t, DefaultStartDate, s.State().UpdatedAt)
}

func TestStream_ReportsSanitizedCharacters(t *testing.T) {
	api := newFakeAPI(t)
	api.script(respondBody(`{"data":[{"_id":"1","name":"a\u0000b"}]}`))
	obs := &countingObserver{}
	s := newTestStream(t, api, obs, nil)

	sink := &memorySink{}
	require.NoError(t, s.Read(context.Background(), sink))
	assert.Equal(t, 6, obs.sanitized)
	require.Len(t, sink.records, 1)
	assert.Equal(t, `{"_id":"1","name":"ab"}`, sink.records[0].Raw())
}

func TestStream_CancelBetweenPages(t *testing.T) {
	api := newFakeAPI(t,
		testRecord{ID: "1", UpdatedAt: "2024-01-01"},
		testRecord{ID: "2", UpdatedAt: "2024-01-02"},
		testRecord{ID: "3", UpdatedAt: "2024-01-03"},
	)
	s := newTestStream(t, api, nil, func(c *Config) {
		c.PageSize = 2
		c.InterPageDelay = 3600
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &memorySink{onRecords: cancel}

	err := s.Read(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1", "2"}, sink.IDs())
	assert.Empty(t, sink.checkpoints)
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Len(t, api.Queries(), 1)
}

func TestStream_SinkFailureKeepsCursor(t *testing.T) {
	api := newFakeAPI(t, testRecord{ID: "1", UpdatedAt: "2024-01-01"})
	s := newTestStream(t, api, nil, nil)

	sinkErr := errors.New("disk full")
	err := s.Read(context.Background(), &memorySink{err: sinkErr})
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, DefaultStartDate, s.State().UpdatedAt)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestNewStream_RequiresToken(t *testing.T) {
	api := newFakeAPI(t)
	sc := testSyncContext(api, nil)
	sc.Config.APIToken = ""
	_, err := NewStream(sc, Endpoint{Name: "vacancies", EndpointURL: api.URL("vacancies")})
	assert.ErrorContains(t, err, "API Token is required")
}

func TestStreams_SkipsInvalidEndpoints(t *testing.T) {
	api := newFakeAPI(t)
	core, logs := observer.New(zapcore.WarnLevel)
	sc := testSyncContext(api, nil,
		Endpoint{Name: "vacancies", EndpointURL: api.URL("vacancies")},
		Endpoint{Name: "Bad Name", EndpointURL: api.URL("bad")},
		Endpoint{EndpointURL: "http://insecure.example.com/dataset/companies"},
		Endpoint{EndpointURL: api.URL("all-hub-vacancies")},
	)
	sc.Logger = zap.New(core)

	streams, err := Streams(sc)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "vacancies", streams[0].Name())
	assert.Equal(t, "all_hub_vacancies", streams[1].Name())

	skipped := logs.FilterMessage("skipping endpoint").All()
	require.Len(t, skipped, 2)
	assert.Equal(t, "Bad Name", skipped[0].ContextMap()["name"])
	assert.Equal(t, "http://insecure.example.com/dataset/companies", skipped[1].ContextMap()["endpoint_url"])
}

func TestStreams_Errors(t *testing.T) {
	api := newFakeAPI(t)
	_, err := Streams(testSyncContext(api, nil))
	assert.ErrorContains(t, err, "No endpoints configured")

	sc := testSyncContext(api, nil, Endpoint{Name: "vacancies", EndpointURL: api.URL("vacancies")})
	sc.Config.APIToken = ""
	_, err = Streams(sc)
	assert.ErrorContains(t, err, "API Token is required")
}
