package lastfm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

const (
	testAPIKey    = "test-api-key"
	testAPISecret = "test-secret"
)

const (
	tokenResponseXML = `<?xml version="1.0" encoding="utf-8"?>
<lfm status="ok">
	<token>abc123</token>
</lfm>`

	sessionResponseJSON = `{"session":{"name":"u1","key":"sess1","subscriber":0}}`

	okResponseXML = `<?xml version="1.0" encoding="utf-8"?>
<lfm status="ok">
</lfm>`

	invalidSessionXML = `<?xml version="1.0" encoding="utf-8"?>
<lfm status="failed">
	<error code="9">Invalid session key - Please re-authenticate</error>
</lfm>`

	unauthorizedTokenJSON = `{"error":14,"message":"Unauthorized Token - This token has not been issued"}`
)

// testService is an httptest server that records the requests it receives.
type testService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method    string
	RawQuery  string
	Query     url.Values
	UserAgent string
}

func newTestService(t *testing.T, handler http.HandlerFunc) *testService {
	t.Helper()

	s := &testService{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method:    r.Method,
			RawQuery:  r.URL.RawQuery,
			Query:     r.URL.Query(),
			UserAgent: r.UserAgent(),
		})
		s.mu.Unlock()

		handler(w, r)
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *testService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *testService) last(t *testing.T) recordedRequest {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("expected at least one request, got none")
	}
	return s.requests[len(s.requests)-1]
}

// newTestClient creates a client against baseURL backed by store.
func newTestClient(t *testing.T, baseURL string, store DocumentStore) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Label:     "Last.fm",
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		Store:     store,
		Endpoints: Endpoints{
			APIURL:     baseURL,
			AuthURL:    LastFM.AuthURL,
			ProfileURL: LastFM.ProfileURL,
		},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// storeWith returns a MemoryStore holding creds.
func storeWith(t *testing.T, creds Credentials) *MemoryStore {
	t.Helper()

	store := NewMemoryStore()
	if err := store.Set(context.Background(), creds); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return store
}

func storedCredentials(t *testing.T, store DocumentStore) Credentials {
	t.Helper()

	var creds Credentials
	if err := store.Get(context.Background(), &creds); err != nil {
		t.Fatalf("failed to read store: %v", err)
	}
	return creds
}

// paramsFromQuery rebuilds Params from a decoded query, minus api_sig.
func paramsFromQuery(q url.Values) Params {
	var params Params
	for k, vs := range q {
		if k == "api_sig" || len(vs) == 0 {
			continue
		}
		params = append(params, Param{Key: k, Value: vs[0]})
	}
	return params
}

// checkSignature verifies that api_sig matches the other parameters.
func checkSignature(t *testing.T, q url.Values) {
	t.Helper()

	got := q.Get("api_sig")
	if got == "" {
		t.Fatal("expected api_sig to be present")
	}
	if want := Sign(paramsFromQuery(q), testAPISecret); got != want {
		t.Errorf("expected api_sig %s, got %s", want, got)
	}
}

func writeBody(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()

	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("failed to write response body: %v", err)
	}
}
