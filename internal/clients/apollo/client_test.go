package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func testClient(t *testing.T, baseURL string, opts Options) Client {
	t.Helper()
	opts.BaseURL = baseURL
	opts.APIKey = "test-key"
	if opts.Sleep == nil {
		opts.Sleep = func(time.Duration) {}
	}
	c, err := NewClientWithOptions(testLogger(), opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func personRecords(n int) []types.Record {
	recs := make([]types.Record, n)
	for i := range recs {
		recs[i] = types.Record{
			types.ColEmail:     string(rune('a'+i)) + "@example.com",
			types.ColFirstName: "First",
			types.ColLastName:  "Last",
		}
	}
	return recs
}

func TestEnrichPeopleBatching(t *testing.T) {
	var calls int32
	var firstBatchSize int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != peopleBulkMatchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var payload peopleDetails
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			atomic.StoreInt32(&firstBatchSize, int32(len(payload.Details)))
		}
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	out, err := c.EnrichPeople(context.Background(), personRecords(11))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out) != 11 {
		t.Fatalf("got %d records, want 11", len(out))
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("got %d calls, want 2", got)
	}
	if got := atomic.LoadInt32(&firstBatchSize); got != 10 {
		t.Fatalf("first batch had %d details, want 10", got)
	}
}

func TestEnrichPeopleMergesMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{
			map[string]any{
				"title":        "VP Engineering",
				"linkedin_url": "https://linkedin.com/in/jane",
				"headline":     "Builder",
				"organization": map[string]any{
					"name":                    "Acme Inc",
					"industry":                "software",
					"estimated_num_employees": 250,
				},
			},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	out, err := c.EnrichPeople(context.Background(), personRecords(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	rec := out[0]
	if rec[types.ColJobTitle] != "VP Engineering" {
		t.Fatalf("job title not merged: %q", rec[types.ColJobTitle])
	}
	if rec[types.PersonColumnPrefix+"Headline"] != "Builder" {
		t.Fatalf("extension column not merged: %v", rec)
	}
	if rec[types.ColCompanyName] != "Acme Inc" {
		t.Fatalf("nested org not merged: %q", rec[types.ColCompanyName])
	}
	if rec[types.ColEmployees] != "250" {
		t.Fatalf("employees not merged: %q", rec[types.ColEmployees])
	}
	if rec[types.ColEnrichmentError] != "" {
		t.Fatalf("unexpected error marker: %q", rec[types.ColEnrichmentError])
	}
}

func TestEnrichPeopleNullMatchLeavesRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{nil}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	in := personRecords(1)
	out, err := c.EnrichPeople(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out[0][types.ColEmail] != in[0][types.ColEmail] {
		t.Fatalf("record mutated: %v", out[0])
	}
	if out[0][types.ColEnrichmentError] != "" {
		t.Fatalf("no-match is not a failure: %q", out[0][types.ColEnrichmentError])
	}
}

func TestRetryOn429ThenSucceed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{}})
	}))
	defer srv.Close()

	var slept []time.Duration
	c := testClient(t, srv.URL, Options{
		InitialBackoff: time.Second,
		Sleep:          func(d time.Duration) { slept = append(slept, d) },
	})
	out, err := c.EnrichPeople(context.Background(), personRecords(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("got %d calls, want 2", got)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("got sleeps %v, want [1s]", slept)
	}
	if out[0][types.ColEnrichmentError] != "" {
		t.Fatalf("retried request should succeed cleanly")
	}
}

func TestTerminal400MarksGroup(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{MaxRetries: 5})
	out, err := c.EnrichPeople(context.Background(), personRecords(2))
	if err != nil {
		t.Fatalf("group failure must not abort the run: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", got)
	}
	for i, rec := range out {
		if rec[types.ColEnrichmentError] == "" {
			t.Fatalf("record %d missing failure marker", i)
		}
	}
}

func TestRetriesExhaustedMarksGroup(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{MaxRetries: 3})
	out, err := c.EnrichPeople(context.Background(), personRecords(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("got %d calls, want 3", got)
	}
	if out[0][types.ColEnrichmentError] == "" {
		t.Fatalf("expected failure marker after exhausting retries")
	}
}

func TestMisalignedResponseMarksGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{
			map[string]any{"title": "A"},
			map[string]any{"title": "B"},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	out, err := c.EnrichPeople(context.Background(), personRecords(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out[0][types.ColEnrichmentError] == "" {
		t.Fatalf("expected contract-violation marker")
	}
	if out[0][types.ColJobTitle] != "" {
		t.Fatalf("misaligned matches must not be merged")
	}
}

func TestEnrichOrganizationsSkipsWithoutDomains(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	in := []types.Record{
		{types.ColEmail: "a@x.com", types.ColCompanyName: "Name Only"},
		{types.ColEmail: "b@x.com"},
	}
	out, err := c.EnrichOrganizations(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("no domains means no provider call, got %d", got)
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2 passed through", len(out))
	}
}

func TestEnrichOrganizationsSendsDomains(t *testing.T) {
	var gotDomains []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != orgBulkEnrichPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload orgPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		gotDomains = payload.Domains
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{
			map[string]any{"name": "Acme Inc", "publicly_traded_symbol": "ACME"},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{})
	in := []types.Record{
		{types.ColEmail: "a@x.com", types.ColWebsite: "https://www.Acme.com/about"},
		{types.ColEmail: "b@x.com", types.ColCompanyName: "No Domain"},
	}
	out, err := c.EnrichOrganizations(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(gotDomains) != 1 || gotDomains[0] != "acme.com" {
		t.Fatalf("got domains %v, want [acme.com]", gotDomains)
	}
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	var enriched, passthrough types.Record
	for _, rec := range out {
		if rec[types.ColEmail] == "a@x.com" {
			enriched = rec
		} else {
			passthrough = rec
		}
	}
	if enriched[types.ColCompanyName] != "Acme Inc" {
		t.Fatalf("org match not merged: %v", enriched)
	}
	if enriched[types.ColListedCompany] != "Yes" {
		t.Fatalf("ticker should mark listed company, got %q", enriched[types.ColListedCompany])
	}
	if passthrough[types.ColCompanyName] != "No Domain" {
		t.Fatalf("passthrough record mutated: %v", passthrough)
	}
}

func TestTimeoutRetriesWithWiderDeadline(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{Timeout: 50 * time.Millisecond, MaxRetries: 3})
	out, err := c.EnrichPeople(context.Background(), personRecords(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("got %d calls, want 2", got)
	}
	if out[0][types.ColEnrichmentError] != "" {
		t.Fatalf("timeout retry should recover: %q", out[0][types.ColEnrichmentError])
	}
}

func TestContextCancellationAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := testClient(t, srv.URL, Options{
		MaxRetries: 5,
		Sleep:      func(time.Duration) { cancel() },
	})
	if _, err := c.EnrichPeople(ctx, personRecords(1)); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestChunkRecords(t *testing.T) {
	groups := chunkRecords(personRecords(25), 10)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if len(groups[0]) != 10 || len(groups[2]) != 5 {
		t.Fatalf("bad group sizes: %d, %d", len(groups[0]), len(groups[2]))
	}
	if groups := chunkRecords(nil, 10); len(groups) != 0 {
		t.Fatalf("empty input should yield no groups")
	}
}

func TestBatchSizeClampedToProviderCap(t *testing.T) {
	var firstBatch int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload peopleDetails
		json.NewDecoder(r.Body).Decode(&payload)
		if atomic.LoadInt32(&firstBatch) == 0 {
			atomic.StoreInt32(&firstBatch, int32(len(payload.Details)))
		}
		json.NewEncoder(w).Encode(map[string]any{"matches": []any{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, Options{BatchSize: 50})
	if _, err := c.EnrichPeople(context.Background(), personRecords(11)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := atomic.LoadInt32(&firstBatch); got != 10 {
		t.Fatalf("batch size must be clamped to 10, got %d", got)
	}
}
