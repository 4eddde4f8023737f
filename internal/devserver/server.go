// Package devserver serves build output over HTTP with websocket live
// reload and Prometheus metrics. It knows nothing about how builds run;
// the serve loop reports build outcomes through the Notify methods and
// connected browsers reload themselves.
package devserver

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ThatTomPerson/webpack/internal/logging"
)

//go:embed client.js
var clientScript []byte

// Config holds dev server configuration.
type Config struct {
	Port int
	// Dir is the output directory to serve.
	Dir string
	// PublicPath is the URL prefix assets are served under. Empty means
	// the server root.
	PublicPath string
}

// Server is one running dev server instance.
type Server struct {
	cfg        Config
	publicPath string
	hub        *Hub
}

// New creates a dev server and starts its broadcast hub.
func New(cfg Config) *Server {
	s := &Server{
		cfg:        cfg,
		publicPath: normalizePublicPath(cfg.PublicPath),
		hub:        NewHub(),
	}
	go s.hub.Run()
	return s
}

// normalizePublicPath pins the prefix into the "/p/" shape ServeMux
// expects for subtree matches.
func normalizePublicPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Handler returns the server's full handler chain.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()
	return logging.Middleware(mux)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/__webpack/ws", s.handleWS)
	mux.HandleFunc("/__webpack/reload.js", s.handleReloadScript)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	fileServer := http.FileServer(http.Dir(s.cfg.Dir))
	if s.publicPath != "/" {
		fileServer = http.StripPrefix(strings.TrimSuffix(s.publicPath, "/"), fileServer)
	}
	mux.Handle(s.publicPath, fileServer)

	return mux
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	logging.ServerStartup("devserver", "http", s.cfg.Port,
		"dir", s.cfg.Dir,
		"public_path", s.publicPath)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	return http.ListenAndServe(addr, s.Handler())
}

// Close stops the broadcast hub and disconnects reload clients.
func (s *Server) Close() {
	s.hub.Close()
}

// Hub exposes the broadcast hub, mainly for tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	serveWS(s.hub, w, r)
}

func (s *Server) handleReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(clientScript)
}

// BuildResult summarizes a finished rebuild for broadcasting.
type BuildResult struct {
	BuildID    string
	Modules    int
	Chunks     int
	AssetBytes int
	Elapsed    time.Duration
}

// NotifyBuilding tells connected clients a rebuild has started.
func (s *Server) NotifyBuilding(buildID string) {
	s.hub.Broadcast(Message{Type: "building", BuildID: buildID})
}

// NotifyBuilt records a successful rebuild and tells connected clients to
// reload.
func (s *Server) NotifyBuilt(res BuildResult) {
	buildsTotal.Inc()
	buildDuration.Observe(res.Elapsed.Seconds())
	emittedAssetBytes.Set(float64(res.AssetBytes))

	s.hub.Broadcast(Message{
		Type:    "built",
		BuildID: res.BuildID,
		Modules: res.Modules,
		Chunks:  res.Chunks,
		Elapsed: res.Elapsed.String(),
	})
}

// NotifyError records a failed rebuild and pushes the errors to connected
// clients. The page is not reloaded; the old bundle keeps running until a
// build succeeds.
func (s *Server) NotifyError(buildID string, elapsed time.Duration, errs []error) {
	buildsTotal.Inc()
	buildErrorsTotal.Inc()
	buildDuration.Observe(elapsed.Seconds())

	texts := make([]string, 0, len(errs))
	for _, err := range errs {
		texts = append(texts, err.Error())
	}
	s.hub.Broadcast(Message{
		Type:    "error",
		BuildID: buildID,
		Elapsed: elapsed.String(),
		Errors:  texts,
	})
}
