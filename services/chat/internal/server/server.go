package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"aihub/internal/ratelimit"
	"aihub/internal/usertoken"
	"aihub/internal/util"
	"aihub/pkg/domain"
	"aihub/services/chat/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	// TurnLimiter throttles turns and broadcasts per user. Nil disables throttling.
	TurnLimiter    *ratelimit.FixedWindowLimiter
	CORSOrigins    []string
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the chat service.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	turnLimiter    *ratelimit.FixedWindowLimiter
	corsOrigins    []string
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		turnLimiter:    cfg.TurnLimiter,
		corsOrigins:    cfg.CORSOrigins,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/providers", s.withUser(s.handleProviders))

	// threads
	s.mux.Handle("/api/threads", s.withUser(s.handleThreads))
	s.mux.Handle("/api/threads/", s.withUser(s.handleThreadByID))

	// api keys
	s.mux.Handle("/api/credentials", s.withUser(s.handleCredentials))
	s.mux.Handle("/api/credentials/", s.withUser(s.handleCredentialByProvider))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "chat.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			s.audit(r, "chat.authorize", "fail", "reason", "invalid_signature_or_claims")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", subject)
		r = r.WithContext(util.ContextWithLogger(r.Context(), logger))
		next(w, r, domain.User{ID: subject})
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": s.app.Providers()})
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.app.ListThreads(r.Context(), user, parseLimit(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var req createThreadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		thread, err := s.app.CreateThread(r.Context(), user, app.CreateThreadInput{Title: req.Title, Provider: req.Provider})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, thread)
	default:
		methodNotAllowed(w)
	}
}

// /api/threads/{id}[/messages|/conversations[/{cid}/messages]|/turns|/broadcast|/summary]
func (s *Server) handleThreadByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/threads/"), "/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 1 {
		s.handleThread(w, r, user, id)
		return
	}
	switch {
	case len(parts) == 2 && parts[1] == "messages":
		s.handleMessages(w, r, user, id)
	case len(parts) == 2 && parts[1] == "conversations":
		s.handleConversations(w, r, user, id)
	case len(parts) == 4 && parts[1] == "conversations" && parts[3] == "messages":
		s.handleConversationMessages(w, r, user, id, parts[2])
	case len(parts) == 2 && parts[1] == "turns":
		s.handleTurn(w, r, user, id)
	case len(parts) == 2 && parts[1] == "broadcast":
		s.handleBroadcast(w, r, user, id)
	case len(parts) == 2 && parts[1] == "summary":
		s.handleSummary(w, r, user, id)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		thread, err := s.app.GetThread(r.Context(), user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, thread)
	case http.MethodDelete:
		if err := s.app.DeleteThread(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "chat.thread.delete", "success", "user_id", user.ID, "thread_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, user domain.User, threadID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListMessages(r.Context(), user, threadID, parseLimit(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, user domain.User, threadID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListConversations(r.Context(), user, threadID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request, user domain.User, threadID, conversationID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListConversationMessages(r.Context(), user, threadID, conversationID, parseLimit(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request, user domain.User, threadID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowTurn(w, r, user) {
		return
	}
	var req turnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.HandleTurn(r.Context(), user, app.TurnInput{
		ThreadID:       threadID,
		ConversationID: req.ConversationID,
		Provider:       req.Provider,
		Message:        req.Message,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request, user domain.User, threadID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowTurn(w, r, user) {
		return
	}
	var req broadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcomes, err := s.app.Broadcast(r.Context(), user, app.BroadcastInput{
		ThreadID:  threadID,
		Message:   req.Message,
		Providers: req.Providers,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, user domain.User, threadID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	text, err := s.app.Summary(r.Context(), user, threadID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	views, err := s.app.ListCredentials(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// /api/credentials/{provider}[/validate]
func (s *Server) handleCredentialByProvider(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/credentials/"), "/")
	parts := strings.Split(path, "/")
	provider := parts[0]
	if provider == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "validate") {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		s.handleValidateCredential(w, r, user, provider)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req credentialRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		view, err := s.app.SaveCredential(r.Context(), user, provider, req.APIKey)
		if err != nil {
			s.audit(r, "chat.credential.save", "fail", "user_id", user.ID, "provider", provider, "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "chat.credential.save", "success", "user_id", user.ID, "provider", provider)
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.app.DeleteCredential(r.Context(), user, provider); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "chat.credential.delete", "success", "user_id", user.ID, "provider", provider)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleValidateCredential(w http.ResponseWriter, r *http.Request, user domain.User, provider string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	valid, err := s.app.ValidateCredential(r.Context(), user, provider, req.APIKey)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) allowTurn(w http.ResponseWriter, r *http.Request, user domain.User) bool {
	if s.turnLimiter == nil {
		return true
	}
	decision, err := s.turnLimiter.Allow(r.Context(), user.ID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limit check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return false
	}
	if decision.Allowed {
		return true
	}
	s.audit(r, "chat.turn", "rate_limited", "user_id", user.ID)
	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

type createThreadRequest struct {
	Title    string `json:"title"`
	Provider string `json:"provider"`
}

type turnRequest struct {
	Provider       string `json:"provider"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type broadcastRequest struct {
	Message   string   `json:"message"`
	Providers []string `json:"providers"`
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil {
		return 0
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorCode(w, status, codeForStatus(status), msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

var appErrorCodes = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrThreadNotFound, http.StatusNotFound, "THREAD_NOT_FOUND"},
	{app.ErrConversationNotFound, http.StatusNotFound, "CONVERSATION_NOT_FOUND"},
	{app.ErrCredentialNotFound, http.StatusNotFound, "CREDENTIAL_NOT_FOUND"},
	{app.ErrUnknownProvider, http.StatusBadRequest, "PROVIDER_UNKNOWN"},
	{app.ErrEmptyMessage, http.StatusBadRequest, "MESSAGE_REQUIRED"},
	{app.ErrNoProviders, http.StatusBadRequest, "PROVIDERS_REQUIRED"},
	{app.ErrDuplicateProvider, http.StatusBadRequest, "PROVIDER_DUPLICATE"},
	{app.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST"},
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range appErrorCodes {
		if errors.Is(err, m.err) {
			writeErrorCode(w, m.status, m.code, err.Error())
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
