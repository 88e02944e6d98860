package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/authpw"
	"thoughtful/api/internal/export"
	"thoughtful/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
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
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/statuses/defaults" {
		writeJSON(w, http.StatusOK, map[string]any{"statusDefinitions": store.DefaultStatuses})
		return
	}

	// Account routes without a session
	if r.Method == http.MethodPost && r.URL.Path == "/api/account/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/account/login" {
		s.handleLogin(w, r)
		return
	}

	if r.URL.Path == "/api/account/register" || r.URL.Path == "/api/account/login" {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || (parts[1] != "account" && parts[1] != "ideas") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	if parts[1] == "ideas" {
		s.handleIdeas(w, r, identity, parts[2:])
		return
	}
	s.handleAccount(w, r, identity, parts[2:])
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body CredentialsInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	issued, err := s.service.Register(r.Context(), body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	s.setSessionCookie(w, issued)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body CredentialsInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
		return
	}
	issued, err := s.service.Login(r.Context(), body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	s.setSessionCookie(w, issued)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleAccount(w http.ResponseWriter, r *http.Request, identity auth.Identity, parts []string) {
	switch parts[0] {
	case "api-keys":
		s.handleAPIKeys(w, r, identity, parts[1:])
		return
	case "statuses":
		s.handleStatuses(w, r, identity, parts[1:])
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[0] == "logout" && r.Method == http.MethodPost:
		if err := s.service.Logout(r.Context(), sessionCookie(r)); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})

	case parts[0] == "fetch" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": s.service.Profile(identity)})

	case parts[0] == "manage" && r.Method == http.MethodPost:
		var body ChangePasswordInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), identity, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully"})

	case parts[0] == "delete" && r.Method == http.MethodPost:
		var body DeleteAccountInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if err := s.service.DeleteAccount(r.Context(), identity, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Account and all data deleted successfully"})

	case parts[0] == "download" && r.Method == http.MethodGet:
		s.handleDownload(w, r, identity)

	case parts[0] == "logout" || parts[0] == "fetch" || parts[0] == "manage" || parts[0] == "delete" || parts[0] == "download":
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	format := r.URL.Query().Get("format")

	if r.URL.Query().Get("delivery") == "link" {
		link, err := s.service.ExportLink(r.Context(), identity, format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"url":       link.URL,
			"expiresAt": link.ExpiresAt,
		})
		return
	}

	result, err := s.service.Export(r.Context(), identity, format)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAPIKeys(w http.ResponseWriter, r *http.Request, identity auth.Identity, parts []string) {
	if len(parts) == 0 && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "apiKeys": s.service.ListAPIKeys(identity)})
		return
	}

	if len(parts) == 1 && parts[0] == "create" && r.Method == http.MethodPost {
		var body CreateAPIKeyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		created, err := s.service.CreateAPIKey(r.Context(), identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "apiKey": created})
		return
	}

	if len(parts) == 1 && parts[0] != "create" && r.Method == http.MethodDelete {
		if err := s.service.DeleteAPIKey(r.Context(), identity, parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleStatuses(w http.ResponseWriter, r *http.Request, identity auth.Identity, parts []string) {
	if len(parts) == 0 && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"statusDefinitions": s.service.ListStatuses(identity)})
		return
	}

	if len(parts) == 1 && parts[0] == "save" && r.Method == http.MethodPost {
		var body SaveStatusInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		saved, err := s.service.SaveStatus(r.Context(), identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": saved})
		return
	}

	if len(parts) == 1 && parts[0] == "fix-unknown" && r.Method == http.MethodPost {
		var body FixUnknownInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		updated, err := s.service.FixUnknown(r.Context(), identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "updatedCount": updated})
		return
	}

	if len(parts) == 1 && r.Method == http.MethodDelete {
		result, err := s.service.DeleteStatus(r.Context(), identity, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if result.Warning {
			writeJSON(w, http.StatusOK, map[string]any{
				"warning":    true,
				"message":    fmt.Sprintf("%d idea(s) use this status", result.IdeasCount),
				"ideasCount": result.IdeasCount,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) == 2 && parts[1] == "force-delete" && r.Method == http.MethodPost {
		if err := s.service.ForceDeleteStatus(r.Context(), identity, parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) > 2 || (len(parts) == 2 && parts[1] != "force-delete") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleIdeas(w http.ResponseWriter, r *http.Request, identity auth.Identity, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[0] == "create" && r.Method == http.MethodPost:
		var body CreateIdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		idea, err := s.service.CreateIdea(r.Context(), identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "idea": idea})

	case parts[0] == "list" && r.Method == http.MethodGet:
		query := r.URL.Query()
		ideas, err := s.service.ListIdeas(r.Context(), identity, ListIdeasInput{
			StatusID:  query.Get("statusId"),
			SortBy:    query.Get("sortBy"),
			SortOrder: query.Get("sortOrder"),
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ideas": ideas})

	case parts[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query()
		q := query.Get("q")
		ideas, err := s.service.SearchIdeas(r.Context(), identity, q, query.Get("mode"))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ideas": ideas, "query": q})

	case parts[0] == "update" && r.Method == http.MethodPut:
		var body UpdateIdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		idea, err := s.service.UpdateIdea(r.Context(), identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "idea": idea})

	case parts[0] == "delete" && r.Method == http.MethodDelete:
		var body DeleteIdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, err.Error(), nil)
			return
		}
		if err := s.service.DeleteIdea(r.Context(), identity, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Idea deleted successfully"})

	case parts[0] == "create" || parts[0] == "list" || parts[0] == "search" || parts[0] == "update" || parts[0] == "delete":
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// requireIdentity authenticates every account and idea route with the
// session cookie or the api-authentication header.
func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.service.Authenticate(r.Context(), auth.Credentials{
		SessionToken: sessionCookie(r),
		APIKey:       strings.TrimSpace(r.Header.Get(auth.APIKeyHeader)),
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return auth.Identity{}, false
	}
	return identity, true
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, issued IssuedSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    issued.Token,
		Domain:   s.service.cfg.CookieDomain,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
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

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, API-Authentication, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
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

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	switch {
	case errors.Is(err, auth.ErrNoCookie):
		return http.StatusUnauthorized, codeUnauthorized, "No Cookie Provided", nil
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, codeUnauthorized, "Invalid Session", nil
	case errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, codeUnauthorized, "Session Expired", nil
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusUnauthorized, codeUnauthorized, "User Not Found", nil

	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeInvalidCredential, "Invalid username or password", nil
	case errors.Is(err, authpw.ErrIncorrectPassword):
		return http.StatusUnauthorized, codeUnauthorized, "Password is incorrect", nil
	case errors.Is(err, authpw.ErrUsernameTaken), errors.Is(err, store.ErrConflict):
		return http.StatusConflict, codeConflict, "Username already taken", nil
	case errors.Is(err, authpw.ErrInvalidUsername), errors.Is(err, authpw.ErrInvalidPassword):
		return http.StatusBadRequest, codeValidation, capitalize(err.Error()), nil

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "Not found", nil
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, codeConflict, "Account was modified concurrently, please retry", nil

	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, codeExportUnavailable, "PDF export is not available on this server", nil
	case errors.Is(err, export.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, codeExportUnavailable, "Export links are not configured", nil
	}

	log.Printf("server error: %v", err)
	return http.StatusInternalServerError, codeServerError, "Server error", nil
}

func capitalize(message string) string {
	if message == "" {
		return message
	}
	return strings.ToUpper(message[:1]) + message[1:]
}
