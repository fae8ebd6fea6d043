package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"billfactor/config"
	"billfactor/core"
	"billfactor/observability"
	"billfactor/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 5 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// ServerConfig controls authentication and throttling of mutating calls.
// Forwarding headers are honoured only for peers listed in TrustedProxies.
type ServerConfig struct {
	AuthToken          string
	RateLimitPerMinute int
	RateLimitBurst     int
	TrustedProxies     []string
}

type Server struct {
	node      *core.Node
	authToken string
	limiter   *clientLimiter
	proxies   []netip.Prefix
	logger    *slog.Logger
	tracer    trace.Tracer
	calls     metric.Int64Counter
	metrics   interface {
		Observe(method string, code int, duration time.Duration)
		RecordThrottle(reason string)
	}
	router http.Handler
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	calls, err := otel.Meter("billfactor/rpc").Int64Counter("billfactor.rpc.calls",
		metric.WithDescription("JSON-RPC calls handled by the node."))
	if err != nil {
		logger.Warn("otel counter unavailable", slog.String("error", err.Error()))
	}
	s := &Server{
		node:      node,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limiter:   newClientLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		logger:    logger,
		tracer:    otel.Tracer("billfactor/rpc"),
		calls:     calls,
		metrics:   observability.ModuleMetrics(),
	}
	for _, entry := range cfg.TrustedProxies {
		prefix, err := config.ParseProxy(entry)
		if err != nil {
			logger.Warn("ignoring trusted proxy", slog.String("entry", entry), slog.String("error", err.Error()))
			continue
		}
		s.proxies = append(s.proxies, prefix)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.trustedRealIP)
	r.Use(chimw.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves JSON-RPC on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves JSON-RPC on listener until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("JSON-RPC server listening", slog.String("addr", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// rpcFailure is returned by handlers and carries the HTTP status used to
// report it.
type rpcFailure struct {
	status int
	err    *RPCError
}

func (f *rpcFailure) Error() string { return f.err.Message }

func failure(status, code int, message string, data interface{}) *rpcFailure {
	return &rpcFailure{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

func invalidParams(err error) *rpcFailure {
	return failure(http.StatusBadRequest, codeInvalidParams, "invalid_params", err.Error())
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"paused": s.node != nil && s.node.Paused(),
	})
}

// handle decodes a JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	w.Header().Set("Content-Type", "application/json")

	ctx, span := s.tracer.Start(r.Context(), "rpc.request", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("rpc.request_id", requestID),
	))
	defer span.End()

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	status, code := s.dispatch(ctx, w, r, req)

	span.SetAttributes(attribute.Int("http.status_code", status))
	s.metrics.Observe(req.Method, code, time.Since(start))
	if s.calls != nil {
		s.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rpc.method", req.Method),
			attribute.Int("rpc.code", code),
		))
	}
	attrs := []any{
		logging.MaskField("requestId", requestID),
		logging.MaskField("method", req.Method),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}
	if code != 0 {
		s.logger.Info("rpc call failed", append(attrs, slog.Int("code", code))...)
		return
	}
	s.logger.Debug("rpc call", attrs...)
}

// dispatch runs the method and writes the response. It returns the HTTP status
// and JSON-RPC error code written (zero on success).
func (s *Server) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, req *RPCRequest) (int, int) {
	m, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return http.StatusNotFound, codeMethodNotFound
	}
	if m.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return http.StatusUnauthorized, authErr.Code
		}
		if !s.limiter.allow(clientSource(r)) {
			s.metrics.RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return http.StatusTooManyRequests, codeRateLimited
		}
	}
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "node unavailable", nil)
		return http.StatusServiceUnavailable, codeServerError
	}

	var raw json.RawMessage
	switch len(req.Params) {
	case 0:
		raw = json.RawMessage("{}")
	case 1:
		raw = req.Params[0]
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "exactly one parameter object expected")
		return http.StatusBadRequest, codeInvalidParams
	}

	result, err := m.handler(s, ctx, raw)
	if err != nil {
		var f *rpcFailure
		if !errors.As(err, &f) {
			f = engineFailure(err)
		}
		writeError(w, f.status, req.ID, f.err.Code, f.err.Message, f.err.Data)
		return f.status, f.err.Code
	}
	writeResult(w, req.ID, result)
	return http.StatusOK, 0
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// trustedRealIP rewrites RemoteAddr from forwarding headers, but only when
// the connecting peer is a configured proxy.
func (s *Server) trustedRealIP(next http.Handler) http.Handler {
	if len(s.proxies) == 0 {
		return next
	}
	rewrite := chimw.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.fromTrustedProxy(r) {
			rewrite.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) fromTrustedProxy(r *http.Request) bool {
	addr, err := netip.ParseAddr(clientSource(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range s.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientSource identifies the caller for rate limiting. Forwarding headers
// have already been applied for trusted proxies.
func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
