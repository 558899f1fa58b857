package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"handbook/api/internal/session"
)

type HTTPServer struct {
	service      *Service
	log          *logrus.Logger
	corsOrigin   string
	secret       []byte
	passwordHash string
	sessionTTL   time.Duration
	limiter      *session.RateLimiter
}

func NewHTTPServer(service *Service, log *logrus.Logger, corsOrigin string, secret []byte, passwordHash string, sessionTTL time.Duration, limiter *session.RateLimiter) *HTTPServer {
	return &HTTPServer{
		service:      service,
		log:          log,
		corsOrigin:   corsOrigin,
		secret:       secret,
		passwordHash: passwordHash,
		sessionTTL:   sessionTTL,
		limiter:      limiter,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.withMiddleware)

	router.Get("/health", s.handleHealth)
	router.Get("/ready", s.handleReady)

	router.Post("/auth/login", s.handleLogin)
	router.Post("/auth/logout", s.handleLogout)

	router.Get("/wiki", s.handleWiki)
	router.Get("/sections", s.handleListSections)
	router.Get("/sections/{id}", s.handleGetSection)

	router.Group(func(protected chi.Router) {
		protected.Use(s.requireSession)
		protected.Post("/sections", s.handleCreateSection)
		protected.Patch("/sections/{id}", s.handleUpdateSection)
		protected.Delete("/sections/{id}", s.handleDeleteSection)
	})

	return router
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if len(s.secret) == 0 || s.passwordHash == "" {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication not configured", nil)
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	fingerprint := clientFingerprint(r)
	limited, err := s.limiter.TooManyFailures(r.Context(), fingerprint)
	if err != nil {
		s.log.WithError(err).Warn("rate limiter unavailable, allowing attempt")
	}
	if limited {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many failed attempts. Try again later.", nil)
		return
	}

	if !session.VerifyPassword(s.passwordHash, body.Password) {
		if err := s.limiter.RecordFailure(r.Context(), fingerprint); err != nil {
			s.log.WithError(err).Warn("could not record login failure")
		}
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password", nil)
		return
	}

	if err := s.limiter.Clear(r.Context(), fingerprint); err != nil {
		s.log.WithError(err).Warn("could not clear login failures")
	}

	token, claims, err := session.IssueToken(s.secret, s.sessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not create session", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339),
	})
}

// handleLogout is advisory: tokens are stateless, so the client drops
// the token and the server just acknowledges.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleWiki(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Wiki(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := s.service.ListSections(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

func (s *HTTPServer) handleGetSection(w http.ResponseWriter, r *http.Request) {
	section, err := s.service.GetSection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (s *HTTPServer) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var body CreateSectionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.CreateSection(r.Context(), body); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "id": body.ID})
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body UpdateSectionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UpdateSection(r.Context(), id, body); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "id": id})
}

func (s *HTTPServer) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	ids, err := s.service.DeleteSection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "ids": ids})
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		if _, err := session.ParseToken(s.secret, token); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// clientFingerprint identifies the caller for rate limiting, trusting
// the left-most forwarded address when present.
func clientFingerprint(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
