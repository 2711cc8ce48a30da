package sync

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const testAPIToken = "secret"

type testRecord struct {
	ID        string
	UpdatedAt string
	Fields    string // extra raw JSON members, without braces
}

func (r testRecord) JSON() string {
	members := []string{fmt.Sprintf(`"_id":%q`, r.ID)}
	if r.UpdatedAt != "" {
		members = append(members, fmt.Sprintf(`"updatedAt":%q`, r.UpdatedAt))
	}
	if r.Fields != "" {
		members = append(members, r.Fields)
	}
	return "{" + strings.Join(members, ",") + "}"
}

// fakeAPI serves records sorted by _id the way the real API filters them.
// Scripted responses, when queued, are served before any page.
type fakeAPI struct {
	t       *testing.T
	server  *httptest.Server
	records []testRecord

	mu       gosync.Mutex
	queries  []Query
	scripted []func(w http.ResponseWriter)
}

func newFakeAPI(t *testing.T, records ...testRecord) *fakeAPI {
	api := &fakeAPI{t: t, records: records}
	api.server = httptest.NewTLSServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) URL(collection string) string {
	return a.server.URL + "/dataset/" + collection
}

// script queues responses to serve before normal pages.
func (a *fakeAPI) script(responses ...func(w http.ResponseWriter)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripted = append(a.scripted, responses...)
}

func (a *fakeAPI) Queries() []Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Query(nil), a.queries...)
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost ||
		r.Header.Get("Authorization") != "Bearer "+testAPIToken ||
		r.Header.Get("Content-Type") != "application/json" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"unauthorized"}`)
		return
	}
	b, err := io.ReadAll(r.Body)
	require.NoError(a.t, err)
	var body QueryBody
	if err := json.Unmarshal(b, &body); err != nil || body.Method != "find" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.queries = append(a.queries, body.Params.Query)
	var next func(w http.ResponseWriter)
	if len(a.scripted) > 0 {
		next = a.scripted[0]
		a.scripted = a.scripted[1:]
	}
	a.mu.Unlock()
	if next != nil {
		next(w)
		return
	}

	query := body.Params.Query
	var after string
	if query.ID != nil {
		require.NoError(a.t, json.Unmarshal(query.ID.GT, &after))
	}
	var page []string
	for _, record := range a.records {
		if query.ID != nil && record.ID <= after {
			continue
		}
		if query.UpdatedAt != nil && record.UpdatedAt < query.UpdatedAt.GTE {
			continue
		}
		if len(page) == query.Limit {
			break
		}
		page = append(page, record.JSON())
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"total":%d,"limit":%d,"data":[%s]}`, len(a.records), query.Limit, strings.Join(page, ","))
}

func respondStatus(status int, body string, header ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		for i := 0; i+1 < len(header); i += 2 {
			w.Header().Set(header[i], header[i+1])
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func respondBody(body string) func(w http.ResponseWriter) {
	return respondStatus(http.StatusOK, body)
}

func respondSlowly(d time.Duration) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		time.Sleep(d)
		_, _ = io.WriteString(w, `{"data":[]}`)
	}
}

// testSyncContext points a sync context at api with fast retries and no
// inter-page delay.
func testSyncContext(api *fakeAPI, observer Observer, endpoints ...Endpoint) SyncContext {
	c := DefaultConfig()
	c.APIToken = testAPIToken
	c.InterPageDelay = 0
	c.RequestTimeout = 5
	c.Endpoints = endpoints
	return SyncContext{
		Config:               c,
		Observer:             observer,
		Transport:            api.server.Client().Transport,
		RetryInitialInterval: time.Millisecond,
	}
}

// memorySink collects what a stream emits.
type memorySink struct {
	records     []Record
	checkpoints []State
	err         error
	onRecords   func()
}

func (s *memorySink) Records(_ string, records []Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	if s.onRecords != nil {
		s.onRecords()
	}
	return nil
}

func (s *memorySink) Checkpoint(_ string, state State) error {
	s.checkpoints = append(s.checkpoints, state)
	return nil
}

func (s *memorySink) IDs() []string {
	var result []string
	for _, r := range s.records {
		id, _ := r.ID()
		result = append(result, id)
	}
	return result
}

// countingObserver counts events; streams call it from one goroutine.
type countingObserver struct {
	sanitized      int
	pages          int
	schemas        int
	retries        []time.Duration
	decodeFailures int
}

func (o *countingObserver) Sanitized(_ string, removed int) { o.sanitized += removed }
func (o *countingObserver) PageRead(string, int, bool)      { o.pages++ }
func (o *countingObserver) SchemaInferred(string, int)      { o.schemas++ }
func (o *countingObserver) RetryScheduled(_ string, _ error, wait time.Duration) {
	o.retries = append(o.retries, wait)
}
func (o *countingObserver) DecodeFailed(string, error) { o.decodeFailures++ }
