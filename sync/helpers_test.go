package sync

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
)

// capturedSignal is one event received by the fake analytics API.
type capturedSignal struct {
	Event      string
	DistinctID string
	Properties map[string]interface{}
}

// fakePostHog fakes the analytics ingestion and persons APIs.
type fakePostHog struct {
	mu      gosync.Mutex
	signals []capturedSignal
	// persons is the raw JSON body returned by the persons lookup.
	persons string
	Server  *httptest.Server
}

func newFakePostHog(t *testing.T) *fakePostHog {
	t.Helper()
	f := &fakePostHog{persons: `{"results":[]}`}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/capture/":
			body, _ := io.ReadAll(r.Body)
			var payload struct {
				Event      string                 `json:"event"`
				DistinctID string                 `json:"distinct_id"`
				Properties map[string]interface{} `json:"properties"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.signals = append(f.signals, capturedSignal{
				Event:      payload.Event,
				DistinctID: payload.DistinctID,
				Properties: payload.Properties,
			})
			f.mu.Unlock()
			w.Write([]byte(`{"status":1}`))
		case strings.HasPrefix(r.URL.Path, "/api/projects/@current/persons"):
			w.Write([]byte(f.persons))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakePostHog) signalsNamed(name string) []capturedSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []capturedSignal
	for _, s := range f.signals {
		if s.Event == name {
			result = append(result, s)
		}
	}
	return result
}

func (f *fakePostHog) signalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

// testSyncer builds a Syncer against fake endpoints with an in-memory
// checkpoint store.
func testSyncer(hubspotURL, posthogURL string, mutate func(*Config)) (Syncer, *MemoryStorage) {
	var config Config
	config.API.Keys.HubSpotAPIKey = "test-key"
	config.API.Keys.PostHogAPIToken = "test-personal-token"
	config.API.Keys.PostHogProjectToken = "test-project-token"
	config.API.Endpoints.HubSpot = hubspotURL
	config.API.Endpoints.PostHog = posthogURL
	if mutate != nil {
		mutate(&config)
	}
	storage := NewMemoryStorage()
	return NewSyncer(config, storage), storage
}
