package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

// fakeService counts the methods it is called with and fails the ones
// listed in failing.
type fakeService struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
}

func newFakeService(t *testing.T, failing ...string) (*fakeService, string) {
	t.Helper()

	f := &fakeService{calls: map[string]int{}, failing: map[string]bool{}}
	for _, m := range failing {
		f.failing[m] = true
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")

		f.mu.Lock()
		f.calls[method]++
		fail := f.failing[method]
		f.mu.Unlock()

		if fail {
			_, _ = w.Write([]byte(`<lfm status="failed"><error code="16">Temporarily unavailable</error></lfm>`))
			return
		}
		_, _ = w.Write([]byte(`<lfm status="ok"><scrobbles accepted="1" ignored="0"></scrobbles></lfm>`))
	}))
	t.Cleanup(server.Close)

	return f, server.URL
}

func (f *fakeService) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newTestRegistry(t *testing.T, url string, labels ...string) (*lastfm.Registry, *scrobbler.Queue) {
	t.Helper()

	queue, err := scrobbler.NewQueue(":memory:")
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(func() { _ = queue.Close() })

	var clients []*lastfm.Client
	for _, label := range labels {
		store := lastfm.NewMemoryStore()
		if err := store.Set(context.Background(), lastfm.Credentials{SessionID: "sess-" + label}); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		api, err := lastfm.NewClient(lastfm.Config{
			Label:     label,
			APIKey:    "k",
			APISecret: "s",
			Store:     store,
			Endpoints: lastfm.Endpoints{APIURL: url},
		})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		clients = append(clients, api)
	}

	registry, err := lastfm.NewRegistry(clients...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry, queue
}

func newTestDaemon(t *testing.T, input string, registry *lastfm.Registry, queue *scrobbler.Queue) *Daemon {
	t.Helper()

	d, err := New(Config{
		StateFile: filepath.Join(t.TempDir(), "state.json"),
		Input:     strings.NewReader(input),
	}, registry, queue, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func runToEOF(t *testing.T, d *Daemon) {
	t.Helper()

	if err := d.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestDaemon_DeduplicatesEvents(t *testing.T) {
	fake, url := newFakeService(t)
	registry, _ := newTestRegistry(t, url, "Last.fm")

	input := strings.Join([]string{
		`{"type":"nowplaying","artist":"A","track":"T","duration":180,"startTimestamp":1000}`,
		`{"type":"nowplaying","artist":"A","track":"T","duration":180,"startTimestamp":1000}`,
		`{"type":"scrobble","artist":"A","track":"T","duration":180,"startTimestamp":1000,"played":120}`,
		`{"type":"scrobble","artist":"A","track":"T","duration":180,"startTimestamp":1000,"played":170}`,
		`{"type":"scrobble","artist":"A","track":"T","duration":180,"played":175}`,
		`not json`,
		`{"type":"love","artist":"A","track":"T"}`,
	}, "\n")

	d := newTestDaemon(t, input, registry, nil)
	runToEOF(t, d)

	tests := map[string]int{
		"track.updatenowplaying": 1,
		"track.scrobble":         1,
		"track.love":             1,
	}
	for method, want := range tests {
		if got := fake.count(method); got != want {
			t.Errorf("expected %d %s calls, got %d", want, method, got)
		}
	}

	current, ok := d.state.Current()
	if !ok {
		t.Fatal("expected a current play")
	}
	if !current.NowPlayingSent || !current.Scrobbled || !current.Loved {
		t.Errorf("unexpected play state %+v", current)
	}
}

func TestDaemon_ReplayAfterScrobble(t *testing.T) {
	fake, url := newFakeService(t)
	registry, _ := newTestRegistry(t, url, "Last.fm")

	input := strings.Join([]string{
		`{"type":"nowplaying","artist":"A","track":"T"}`,
		`{"type":"scrobble","artist":"A","track":"T"}`,
		`{"type":"nowplaying","artist":"A","track":"T"}`,
	}, "\n")

	d := newTestDaemon(t, input, registry, nil)
	runToEOF(t, d)

	if got := fake.count("track.updatenowplaying"); got != 2 {
		t.Errorf("expected the replay to send now playing again, got %d calls", got)
	}
	if current, _ := d.state.Current(); current.Scrobbled {
		t.Error("expected the replay to be a fresh play")
	}
}

func TestDaemon_SkipsIneligiblePlays(t *testing.T) {
	fake, url := newFakeService(t)
	registry, _ := newTestRegistry(t, url, "Last.fm")

	input := `{"type":"scrobble","artist":"A","track":"T","duration":300,"played":20}` + "\n" +
		`{"type":"scrobble","artist":"B","track":"Short","duration":20,"played":20}`

	d := newTestDaemon(t, input, registry, nil)
	runToEOF(t, d)

	if got := fake.count("track.scrobble"); got != 0 {
		t.Errorf("expected no scrobbles, got %d", got)
	}
}

func TestDaemon_RoutesEventsByService(t *testing.T) {
	fake, url := newFakeService(t)
	registry, _ := newTestRegistry(t, url, "Last.fm", "Libre.fm")

	input := `{"type":"nowplaying","artist":"A","track":"T","startTimestamp":1000}` + "\n" +
		`{"type":"love","service":"Libre.fm","artist":"A","track":"T"}` + "\n" +
		`{"type":"unlove","service":"Nowhere","artist":"A","track":"T"}`

	d, err := New(Config{
		StateFile:      filepath.Join(t.TempDir(), "state.json"),
		Input:          strings.NewReader(input),
		DefaultService: "Last.fm",
	}, registry, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runToEOF(t, d)

	if got := fake.count("track.updatenowplaying"); got != 1 {
		t.Errorf("expected now playing on the default service only, got %d", got)
	}
	if got := fake.count("track.love"); got != 1 {
		t.Errorf("expected love on one service, got %d", got)
	}
	if got := fake.count("track.unlove"); got != 0 {
		t.Errorf("expected unknown service to be rejected, got %d", got)
	}
}

func TestDaemon_ClientFor(t *testing.T) {
	_, url := newFakeService(t)

	single, _ := newTestRegistry(t, url, "Libre.fm")
	d := newTestDaemon(t, "", single, nil)
	if c, err := d.clientFor(""); err != nil || c.Label() != "Libre.fm" {
		t.Errorf("expected the only service as default, got %v, %v", c, err)
	}

	multi, _ := newTestRegistry(t, url, "Last.fm", "Libre.fm")
	d = newTestDaemon(t, "", multi, nil)
	if _, err := d.clientFor(""); err == nil {
		t.Error("expected error for an event without service and no default")
	}
	if c, err := d.clientFor("Libre.fm"); err != nil || c.Label() != "Libre.fm" {
		t.Errorf("expected Libre.fm client, got %v, %v", c, err)
	}
	if _, err := d.clientFor("Nowhere"); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestDaemon_QueuesFailedScrobbles(t *testing.T) {
	fake, url := newFakeService(t, "track.scrobble")
	registry, queue := newTestRegistry(t, url, "Last.fm")

	input := `{"type":"scrobble","artist":"A","track":"T","startTimestamp":1000}` + "\n" +
		`{"type":"scrobble","artist":"A","track":"T","startTimestamp":1000}`

	d := newTestDaemon(t, input, registry, queue)
	runToEOF(t, d)

	pending, err := queue.GetPending(context.Background(), "Last.fm", 0)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued scrobble, got %d", len(pending))
	}
	// The final flush at shutdown tried once more.
	if pending[0].Attempts < 1 {
		t.Errorf("expected a recorded flush attempt, got %+v", pending[0])
	}
	if got := fake.count("track.scrobble"); got < 2 {
		t.Errorf("expected the scrobble and at least one flush, got %d calls", got)
	}

	if current, _ := d.state.Current(); !current.Scrobbled {
		t.Error("expected queued play to count as handled")
	}
}

func TestDaemon_FlushesQueueOnStart(t *testing.T) {
	fake, url := newFakeService(t)
	registry, queue := newTestRegistry(t, url, "Last.fm")

	if _, err := queue.Add(context.Background(), "Last.fm", testPlay("Queued", 1000)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	d := newTestDaemon(t, "", registry, queue)
	runToEOF(t, d)

	if got := fake.count("track.scrobble"); got < 1 {
		t.Errorf("expected a flush call, got %d", got)
	}
	if n, _ := queue.Count(context.Background(), "Last.fm", false); n != 0 {
		t.Errorf("expected queue to be drained, got %d", n)
	}
}

func TestNew_Validation(t *testing.T) {
	_, url := newFakeService(t)
	registry, _ := newTestRegistry(t, url, "Last.fm")

	if _, err := New(Config{Input: strings.NewReader("")}, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error without services")
	}
	if _, err := New(Config{}, registry, nil, zerolog.Nop()); err == nil {
		t.Error("expected error without input")
	}
	if _, err := New(Config{Input: strings.NewReader(""), DefaultService: "Libre.fm"}, registry, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for an unconfigured default service")
	}
}
