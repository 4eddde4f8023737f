package devserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServeStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.js"), []byte("console.log(1);\n"), 0644); err != nil {
		t.Fatalf("Failed to write asset: %v", err)
	}

	s := New(Config{Dir: dir})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/main.js")
	if err != nil {
		t.Fatalf("Failed to get asset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "console.log(1);\n" {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestServeStaticPublicPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0.js"), []byte("chunk"), 0644); err != nil {
		t.Fatalf("Failed to write asset: %v", err)
	}

	s := New(Config{Dir: dir, PublicPath: "/assets/"})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/assets/0.js")
	if err != nil {
		t.Fatalf("Failed to get asset: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 under public path, got %d", resp.StatusCode)
	}

	// Outside the public path nothing is served.
	resp2, err := http.Get(server.URL + "/0.js")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 outside public path, got %d", resp2.StatusCode)
	}
}

func TestNormalizePublicPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/assets/", "/assets/"},
		{"/assets", "/assets/"},
		{"assets/", "/assets/"},
		{"assets", "/assets/"},
	}
	for _, tt := range tests {
		if got := normalizePublicPath(tt.in); got != tt.want {
			t.Errorf("normalizePublicPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReloadScript(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/__webpack/reload.js")
	if err != nil {
		t.Fatalf("Failed to get reload script: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Expected a javascript content type, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "/__webpack/ws") {
		t.Error("Reload script should connect to the websocket endpoint")
	}
	if !strings.Contains(string(body), "location.reload") {
		t.Error("Reload script should reload the page on build events")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	s.NotifyBuilt(BuildResult{BuildID: "b1", Modules: 2, Chunks: 1, AssetBytes: 512, Elapsed: 40 * time.Millisecond})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	text := string(body)
	for _, metric := range []string{
		"webpack_devserver_builds_total",
		"webpack_devserver_build_errors_total",
		"webpack_devserver_build_duration_seconds",
		"webpack_devserver_connected_clients",
		"webpack_devserver_emitted_asset_bytes",
	} {
		if !strings.Contains(text, metric) {
			t.Errorf("Expected metrics output to contain %s", metric)
		}
	}
}

func TestNotifyBuilt(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server.URL)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	s.NotifyBuilt(BuildResult{BuildID: "b2", Modules: 5, Chunks: 3, Elapsed: 60 * time.Millisecond})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != "built" {
		t.Errorf("Expected type 'built', got %s", msg.Type)
	}
	if msg.Modules != 5 || msg.Chunks != 3 {
		t.Errorf("Expected 5 modules and 3 chunks, got %d and %d", msg.Modules, msg.Chunks)
	}
	if msg.Elapsed == "" {
		t.Error("Expected elapsed to be set")
	}
}

func TestNotifyError(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})
	defer s.Close()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server.URL)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	s.NotifyError("b3", 25*time.Millisecond, []error{
		io.ErrUnexpectedEOF,
		os.ErrNotExist,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != "error" {
		t.Errorf("Expected type 'error', got %s", msg.Type)
	}
	if len(msg.Errors) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(msg.Errors))
	}
	if msg.Errors[0] != io.ErrUnexpectedEOF.Error() {
		t.Errorf("Unexpected first error text: %q", msg.Errors[0])
	}
}
