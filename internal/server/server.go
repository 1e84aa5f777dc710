package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/keywatch"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write
	// operation. This prevents goroutine leaks when clients are slow or
	// disconnected. Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// wsWriteTimeout bounds each WebSocket write for the same reason.
	wsWriteTimeout = 5 * time.Second

	// streamBuffer is the observer channel capacity for SSE and WebSocket
	// connections. Overflow drops changes for that connection only.
	streamBuffer = 100

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "keywatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Server handles HTTP requests for the keywatch dashboard and API.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/state: Returns the watched keys' current values as JSON
//   - POST /api/state/{key}: Assigns a value to a key (asynchronous)
//   - GET /api/sse: Server-Sent Events stream of changes
//   - GET /api/watch: WebSocket stream of changes
//   - GET /metrics: Prometheus metrics (when a gatherer is configured)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      *keywatch.Store
	keys       []string
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is an open demo surface, mirror the SSE CORS policy
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - store: the store to expose
//   - keys: the keys the dashboard watches and displays
//   - port: TCP port to listen on
//   - assets: embedded filesystem containing dashboard assets (may be nil)
//   - title: dashboard title (defaults to "keywatch" if empty)
//   - logger: logger for server events
//   - gatherer: metrics source for /metrics (may be nil to disable)
//
// The server is not started until [Server.Start] is called.
func NewServer(store *keywatch.Store, keys []string, port int, assets fs.FS, title string, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	cp := make([]string, len(keys))
	copy(cp, keys)

	return &Server{
		store:    store,
		keys:     cp,
		port:     port,
		assets:   assets,
		title:    title,
		logger:   logger,
		gatherer: gatherer,
	}
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a
// 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/state/", s.handleAssign)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/watch", s.handleWatch)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// serve dashboard assets
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}

	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: mux,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleState returns the watched keys' current values as JSON.
//
// Keys with no value yet are omitted, matching the store's Take semantics.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.store.Take(r.Context(), s.keys...)
	if err != nil {
		http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error("failed to encode state response", "error", err)
	}
}

// handleAssign assigns a value to a single key.
//
// The body is a JSON object of the form {"value": ...}. The write is
// fire-and-forget in the store, so the handler responds 202 Accepted:
// the mutation (and any notifications) completes asynchronously.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/state/")
	if key == "" || strings.Contains(key, "/") {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	s.store.Assign(key, body.Value)
	s.logger.Debug("assign accepted", "key", key)
	w.WriteHeader(http.StatusAccepted)
}

// handleSSE streams changes to the watched keys via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients
// are slow or disconnected. Without deadlines, a blocked Fprintf call would
// prevent the handler from detecting context cancellation or channel
// closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// one observer per connection; closing it marks us dead for pruning
	obs := keywatch.NewObserver(streamBuffer)
	defer obs.Close()
	s.store.Subscribe(obs, s.keys...)

	// send the current values first so the client starts complete
	if err := s.streamSnapshot(r.Context(), writeAndFlush); err != nil {
		return
	}

	for {
		select {
		case change, ok := <-obs.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-s.store.Done():
			return

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// streamSnapshot emits the watched keys' current values as individual
// change events, in configured key order.
func (s *Server) streamSnapshot(ctx context.Context, write func([]byte) error) error {
	snapshot, err := s.store.Take(ctx, s.keys...)
	if err != nil {
		return err
	}

	for _, k := range s.keys {
		v, ok := snapshot[k]
		if !ok {
			continue
		}
		data, err := json.Marshal(keywatch.Change{Key: k, Value: v})
		if err != nil {
			continue
		}
		if err := write(data); err != nil {
			return err
		}
	}
	return nil
}

// handleWatch streams changes to the watched keys over a WebSocket.
//
// Each message is one JSON-encoded change. The read loop exists only to
// detect the client closing the connection; inbound messages are ignored.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	obs := keywatch.NewObserver(streamBuffer)
	s.store.Subscribe(obs, s.keys...)
	defer func() {
		obs.Close()
		_ = conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeChange := func(c keywatch.Change) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(c)
	}

	snapshot, err := s.store.Take(r.Context(), s.keys...)
	if err != nil {
		return
	}
	for _, k := range s.keys {
		if v, ok := snapshot[k]; ok {
			if err := writeChange(keywatch.Change{Key: k, Value: v}); err != nil {
				return
			}
		}
	}

	for {
		select {
		case change, ok := <-obs.Events():
			if !ok {
				return
			}
			if err := writeChange(change); err != nil {
				return
			}

		case <-closed:
			return

		case <-s.store.Done():
			s.closeWebsocket(conn, websocket.CloseGoingAway)
			return

		case <-r.Context().Done():
			s.closeWebsocket(conn, websocket.CloseGoingAway)
			return
		}
	}
}

// closeWebsocket attempts a clean close handshake; errors are ignored
// because the connection is torn down either way.
func (s *Server) closeWebsocket(conn *websocket.Conn, code int) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
}
