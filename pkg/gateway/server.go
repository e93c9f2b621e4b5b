package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/sameehj/gridbridge/pkg/runtime/logging"
	"github.com/sameehj/gridbridge/pkg/transform"
	"github.com/sameehj/gridbridge/pkg/version"
)

const (
	httpShutdownTimeout = 5 * time.Second
	defaultMaxBodyBytes = 32 << 20
	requestIDHeader     = "X-Request-ID"
)

// kindUnavailable is reported when every in-flight slot is taken.
const kindUnavailable transform.Kind = "unavailable"

// Transformer runs one transform request.
type Transformer interface {
	Transform(ctx context.Context, req transform.Request) (*transform.Result, error)
}

type Options struct {
	Addr string
	// MaxInFlight bounds concurrent transforms. Zero means unlimited.
	MaxInFlight     int
	MaxBodyBytes    int64
	AllowedOrigins  []string
	Authorizer      Authorizer
	ShutdownTimeout time.Duration
	// Engines is reported by /health.
	Engines []string
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Server is the HTTP front end for transforms.
type Server struct {
	opts        Options
	transformer Transformer
	logger      *slog.Logger
	started     time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewServer(transformer Transformer, opts Options) *Server {
	if opts.Authorizer == nil {
		opts.Authorizer = NoopAuthorizer{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = httpShutdownTimeout
	}
	return &Server{
		opts:        opts,
		transformer: transformer,
		started:     time.Now(),
		sessions:    make(map[string]*Session),
	}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routed handler with CORS, request ids and the address
// allowlist applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.opts.MCP)
	}
	return s.middleware(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		errCh <- httpServer.Shutdown(shutdownCtx)
	}()

	s.logInfo("gateway_listening", "addr", listener.Addr().String(), "max_in_flight", s.opts.MaxInFlight)
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-errCh; err != nil {
		s.logError("gateway_shutdown_failed", "error", err)
		return err
	}
	s.logInfo("gateway_stopped")
	return nil
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		s.writeCORSHeaders(w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := s.opts.Authorizer.Allow(r.Context(), r.RemoteAddr); err != nil {
			s.logWarn("request_denied", "remote", r.RemoteAddr, "error", err)
			s.writeJSON(w, http.StatusForbidden, transform.FailureBody{Error: "Forbidden.", Kind: transform.KindInvalidInput})
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	session, ok := s.acquire(r)
	if !ok {
		s.logWarn("in_flight_limit_reached", "remote", r.RemoteAddr, "limit", s.opts.MaxInFlight)
		s.writeJSON(w, http.StatusServiceUnavailable, transform.FailureBody{Error: "Too many requests in flight.", Kind: kindUnavailable})
		return
	}
	defer s.release(session.ID)

	req, status, message := s.decodeRequest(w, r)
	if message != "" {
		s.logWarn("request_rejected", "status", status, "reason", message)
		s.writeJSON(w, status, transform.FailureBody{Error: message, Kind: transform.KindInvalidInput})
		return
	}

	result, err := s.transformer.Transform(r.Context(), req)
	if err != nil {
		te := transform.AsError(err)
		s.writeJSON(w, te.Status(), te.Body())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decodeRequest reads the body, inflating zstd when asked. A non-empty
// message means the body was rejected with status.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (req transform.Request, status int, message string) {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer body.Close()

	var reader io.Reader = body
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "zstd":
		decoder, err := zstd.NewReader(body)
		if err != nil {
			return req, http.StatusBadRequest, "Invalid zstd body: " + err.Error()
		}
		defer decoder.Close()
		reader = http.MaxBytesReader(w, io.NopCloser(decoder), s.opts.MaxBodyBytes)
	default:
		return req, http.StatusUnsupportedMediaType, "Unsupported content encoding: " + enc
	}

	if err := json.NewDecoder(reader).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit)
		}
		return req, http.StatusBadRequest, "Invalid JSON body: " + err.Error()
	}
	return req, http.StatusOK, ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"version":  version.Get(),
		"engines":  s.opts.Engines,
		"inFlight": s.sessionCount(),
	})
}

// acquire registers r as in flight unless the limit is reached.
func (s *Server) acquire(r *http.Request) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.MaxInFlight > 0 && len(s.sessions) >= s.opts.MaxInFlight {
		return nil, false
	}
	session := &Session{
		ID:         logging.RequestID(r.Context()),
		RemoteAddr: r.RemoteAddr,
		StartedAt:  time.Now(),
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, dup := s.sessions[session.ID]; dup {
		session.ID = uuid.NewString()
	}
	s.sessions[session.ID] = session
	return session, true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ListSessions returns the requests currently being transformed.
func (s *Server) ListSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *Server) writeCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allowed := ""
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			allowed = "*"
			break
		}
		if origin != "" && strings.EqualFold(o, origin) {
			allowed = origin
			break
		}
	}
	if allowed == "" {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, "+requestIDHeader)
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Expose-Headers", requestIDHeader)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logError("encode_response_failed", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logWarn("write_response_failed", "error", err)
	}
}

func (s *Server) Addr() string {
	return s.opts.Addr
}

func (s *Server) String() string {
	return fmt.Sprintf("gateway(%s)", s.opts.Addr)
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
