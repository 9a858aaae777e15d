package lastfm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestExecute_Success(t *testing.T) {
	server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(t, w, http.StatusOK, okResponseXML)
	})
	client := newTestClient(t, server.URL+"/2.0/", NewMemoryStore())

	params := Params{{Key: "method", Value: "track.love"}}
	env, err := client.execute(context.Background(), http.MethodPost, params, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.ok() {
		t.Errorf("expected ok envelope, got status %q", env.Status)
	}

	req := server.last(t)
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.Query.Get("api_key") != testAPIKey {
		t.Errorf("expected api_key %s, got %s", testAPIKey, req.Query.Get("api_key"))
	}
	if req.UserAgent != DefaultUserAgent {
		t.Errorf("expected user agent %s, got %s", DefaultUserAgent, req.UserAgent)
	}
	checkSignature(t, req.Query)

	if len(params) != 1 {
		t.Errorf("expected caller params to be left alone, got %v", params)
	}
}

func TestExecute_Unsigned(t *testing.T) {
	server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(t, w, http.StatusOK, okResponseXML)
	})
	client := newTestClient(t, server.URL, NewMemoryStore())

	if _, err := client.execute(context.Background(), http.MethodGet, Params{{Key: "method", Value: "m"}}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server.last(t).Query.Has("api_sig") {
		t.Error("expected no api_sig on an unsigned call")
	}
}

func TestExecute_SignatureSkipsFormat(t *testing.T) {
	server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(t, w, http.StatusOK, sessionResponseJSON)
	})
	client := newTestClient(t, server.URL, NewMemoryStore())

	_, err := client.execute(context.Background(), http.MethodGet, Params{
		{Key: "method", Value: "auth.getsession"},
		{Key: "token", Value: "abc123"},
		{Key: "format", Value: "json"},
	}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := server.last(t).Query
	if q.Get("format") != "json" {
		t.Errorf("expected format=json to be sent, got %q", q.Get("format"))
	}
	// md5("api_keytest-api-keymethodauth.getsessiontokenabc123test-secret")
	if got := q.Get("api_sig"); got != "4e6f5d9baa85b98d937b41c3c183fff8" {
		t.Errorf("unexpected api_sig %s", got)
	}
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		params   Params
		wantCode int
		wantMsg  string
	}{
		{
			name:     "failed envelope with 200",
			status:   http.StatusOK,
			body:     invalidSessionXML,
			wantCode: ErrCodeInvalidSessionKey,
		},
		{
			name:     "failed envelope with 403",
			status:   http.StatusForbidden,
			body:     invalidSessionXML,
			wantCode: ErrCodeInvalidSessionKey,
		},
		{
			name:     "failed JSON envelope",
			status:   http.StatusForbidden,
			body:     unauthorizedTokenJSON,
			params:   Params{{Key: "format", Value: "json"}},
			wantCode: ErrCodeUnauthorizedToken,
		},
		{
			name:    "server error without envelope",
			status:  http.StatusInternalServerError,
			body:    "<html>oops</html>",
			wantMsg: "unexpected status code: 500",
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    "not xml at all",
			wantMsg: "failed to parse XML response",
		},
		{
			name:    "unknown status attribute",
			status:  http.StatusOK,
			body:    `<lfm status="weird"></lfm>`,
			wantMsg: `unexpected status "weird"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				writeBody(t, w, tt.status, tt.body)
			})
			client := newTestClient(t, server.URL, NewMemoryStore())

			params := append(Params{{Key: "method", Value: "track.love"}}, tt.params...)
			_, err := client.execute(context.Background(), http.MethodPost, params, true)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrOther) {
				t.Errorf("expected ErrOther, got %v", err)
			}
			if errors.Is(err, ErrAuth) {
				t.Errorf("expected transport errors not to carry ErrAuth, got %v", err)
			}
			if ResultOf(err) != ResultOtherError {
				t.Errorf("expected %s, got %s", ResultOtherError, ResultOf(err))
			}

			if tt.wantCode != 0 {
				var apiErr *Error
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected *Error, got %T: %v", err, err)
				}
				if apiErr.Code != tt.wantCode {
					t.Errorf("expected code %d, got %d", tt.wantCode, apiErr.Code)
				}
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestExecute_NetworkError(t *testing.T) {
	server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	url := server.URL
	server.Close()

	client := newTestClient(t, url, NewMemoryStore())
	_, err := client.execute(context.Background(), http.MethodGet, Params{{Key: "method", Value: "m"}}, true)
	if !errors.Is(err, ErrOther) {
		t.Errorf("expected ErrOther, got %v", err)
	}
}

func TestExecute_CustomUserAgent(t *testing.T) {
	server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(t, w, http.StatusOK, okResponseXML)
	})

	client, err := NewClient(Config{
		Label:     "Libre.fm",
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		Store:     NewMemoryStore(),
		Endpoints: Endpoints{APIURL: server.URL},
		UserAgent: "webscrobbler/1.2.3",
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.execute(context.Background(), http.MethodGet, Params{{Key: "method", Value: "m"}}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ua := server.last(t).UserAgent; ua != "webscrobbler/1.2.3" {
		t.Errorf("expected custom user agent, got %s", ua)
	}
}
