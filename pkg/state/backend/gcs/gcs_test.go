package gcs

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

// mockGCSServer simulates the GCS JSON API for client construction tests.
type mockGCSServer struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func newMockGCSServer() *mockGCSServer {
	return &mockGCSServer{objects: make(map[string][]byte)}
}

func (m *mockGCSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.URL.Path
	if strings.HasPrefix(path, "/upload/storage/v1/b/") {
		m.handleUpload(w, r)
		return
	}

	// Object paths look like /storage/v1/b/{bucket}/o/{object}; a trailing
	// /o with no object is a list request.
	path = strings.TrimPrefix(path, "/storage/v1")
	path = strings.TrimPrefix(path, "/b/")

	var bucket, object string
	switch {
	case strings.Contains(path, "/o/"):
		parts := strings.SplitN(path, "/o/", 2)
		bucket, object = parts[0], parts[1]
	case strings.HasSuffix(path, "/o"):
		bucket = strings.TrimSuffix(path, "/o")
	default:
		bucket = path
	}

	if object == "" && r.Method == http.MethodGet {
		m.handleList(w, r, bucket)
		return
	}

	key := bucket + "/" + object
	switch r.Method {
	case http.MethodGet:
		m.handleGet(w, r, key)
	case http.MethodDelete:
		m.handleDelete(w, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *mockGCSServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/")
	bucket := strings.SplitN(path, "/o", 2)[0]
	object := r.URL.Query().Get("name")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.objects[bucket+"/"+object] = data

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"name":"` + object + `"}`))
}

func (m *mockGCSServer) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	data, ok := m.objects[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": 404, "message": "No such object"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("alt") == "media" {
		_, _ = w.Write(data)
		return
	}
	name := strings.SplitN(key, "/", 2)[1]
	_, _ = w.Write([]byte(`{"name":"` + name + `"}`))
}

func (m *mockGCSServer) handleDelete(w http.ResponseWriter, key string) {
	if _, ok := m.objects[key]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(m.objects, key)
	w.WriteHeader(http.StatusNoContent)
}

func (m *mockGCSServer) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")

	var items []string
	for key := range m.objects {
		if !strings.HasPrefix(key, bucket+"/") {
			continue
		}
		name := strings.TrimPrefix(key, bucket+"/")
		if prefix == "" || strings.HasPrefix(name, prefix) {
			items = append(items, `{"name":"`+name+`"}`)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"items":[` + strings.Join(items, ",") + `]}`))
}

func newTestBackend(t *testing.T, cfg map[string]string) *Backend {
	t.Helper()

	server := httptest.NewServer(newMockGCSServer())
	t.Cleanup(server.Close)

	settings := map[string]string{
		"bucket":   "journal-bucket",
		"endpoint": server.URL + "/storage/v1/",
	}
	for k, v := range cfg {
		settings[k] = v
	}

	b, err := NewBackend(settings)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	gb := b.(*Backend)
	t.Cleanup(func() { _ = gb.Close() })
	return gb
}

func TestNewBackend_MissingBucket(t *testing.T) {
	_, err := NewBackend(map[string]string{})
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("expected error to mention bucket, got: %v", err)
	}

	if _, err := NewBackend(map[string]string{"bucket": ""}); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestBackend_Type(t *testing.T) {
	b := newTestBackend(t, nil)
	if b.Type() != "gcs" {
		t.Errorf("expected type 'gcs', got %q", b.Type())
	}
}

func TestBackend_ConfigSettings(t *testing.T) {
	b := newTestBackend(t, map[string]string{"prefix": "journals/lab-a"})
	if b.prefix != "journals/lab-a" {
		t.Errorf("expected prefix 'journals/lab-a', got %q", b.prefix)
	}
	if b.bucket != "journal-bucket" {
		t.Errorf("expected bucket 'journal-bucket', got %q", b.bucket)
	}
}

func TestBackend_ObjectName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		path     string
		expected string
	}{
		{
			name:     "no prefix",
			prefix:   "",
			path:     "cases/2026-0142/runs/abc.run.json",
			expected: "cases/2026-0142/runs/abc.run.json",
		},
		{
			name:     "with prefix",
			prefix:   "journals/lab-a",
			path:     "cases/2026-0142/runs/abc.run.json",
			expected: "journals/lab-a/cases/2026-0142/runs/abc.run.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{prefix: tt.prefix}
			if got := b.object(tt.path); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGCSLock(t *testing.T) {
	info := backend.LockInfo{
		ID:        "lock-id",
		Path:      "cases/2026-0142/runs",
		Who:       "examiner@workstation",
		Operation: "apply",
		Created:   time.Now(),
	}

	lock := &gcsLock{object: "cases/2026-0142/runs.lock", info: info}

	if lock.ID() != "lock-id" {
		t.Errorf("expected ID 'lock-id', got %q", lock.ID())
	}
	if got := lock.Info(); got.Who != info.Who || got.Operation != info.Operation {
		t.Errorf("Info mismatch: got %+v", got)
	}
}

func TestMockServer_UploadDownloadDelete(t *testing.T) {
	server := httptest.NewServer(newMockGCSServer())
	defer server.Close()

	data := []byte(`{"id":"abc"}`)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/upload/storage/v1/b/bucket/o?name=run.json", bytes.NewReader(data))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload returned %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/storage/v1/b/bucket/o/run.json?alt=media")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(body, data) {
		t.Errorf("expected %s, got %s", data, body)
	}

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/storage/v1/b/bucket/o/run.json", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(server.URL + "/storage/v1/b/bucket/o/run.json?alt=media")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestMockServer_ListWithPrefix(t *testing.T) {
	server := httptest.NewServer(newMockGCSServer())
	defer server.Close()

	for _, name := range []string{"cases%2Fa%2Frun1.json", "cases%2Fa%2Frun2.json", "cases%2Fb%2Frun1.json"} {
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/upload/storage/v1/b/bucket/o?name="+name, bytes.NewReader([]byte("{}")))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(server.URL + "/storage/v1/b/bucket/o?prefix=cases/a/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "cases/a/run1.json") {
		t.Error("expected listing to contain cases/a/run1.json")
	}
	if strings.Contains(string(body), "cases/b/run1.json") {
		t.Error("expected listing to exclude cases/b/run1.json")
	}
}

func TestBackend_InterfaceCompliance(t *testing.T) {
	var _ backend.Backend = (*Backend)(nil)
}
