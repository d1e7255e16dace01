package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type api struct {
	store *Store
	log   *slog.Logger
	// rate limiting buckets per IP:key
	rlMu sync.Mutex
	rl   map[string]*rateBucket
}

func newAPI(store *Store, log *slog.Logger) *api {
	return &api{store: store, log: log, rl: map[string]*rateBucket{}}
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func (a *api) allow(ip, key string, max int, window time.Duration) bool {
	now := time.Now()
	rk := ip + ":" + key
	a.rlMu.Lock()
	b, ok := a.rl[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{count: 0, resetAt: now.Add(window)}
		a.rl[rk] = b
	}
	if b.count >= max {
		a.rlMu.Unlock()
		return false
	}
	b.count++
	a.rlMu.Unlock()
	return true
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if !a.allow(ip, name, max, window) {
			writeError(w, 429, "too many requests")
			return
		}
		next(w, r)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

// writeError is the uniform failure shape; clients surface Message as-is.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// cookie/session helpers
func (a *api) sessionCookieName() string { return getenv("SESSION_COOKIE_NAME", "kanbanlite_sess") }
func (a *api) sessionTTL() time.Duration {
	if v := getenv("SESSION_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 14 * 24 * time.Hour
}
func (a *api) secureCookie() bool { return getenv("COOKIE_SECURE", "false") == "true" }
func (a *api) sameSite() http.SameSite {
	switch strings.ToLower(getenv("COOKIE_SAMESITE", "lax")) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (a *api) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.sessionCookieName(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(),
		SameSite: a.sameSite(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func (a *api) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.sessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(),
		SameSite: a.sameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (a *api) currentUser(r *http.Request) (*User, error) {
	c, err := r.Cookie(a.sessionCookieName())
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	u, err := a.store.UserBySession(r.Context(), c.Value)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// requireAuth re-validates the session on every call; handlers never see
// an unauthenticated request.
func (a *api) requireAuth(next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.currentUser(r)
		if err != nil {
			writeError(w, 401, "authentication required")
			return
		}
		next(w, r, *u)
	}
}

func isGlobalAdmin(u User) bool { return u.Role == RoleAdmin || u.Role == RoleOwner }

func (a *api) requireAdmin(next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request, u User) {
		if !isGlobalAdmin(u) {
			writeError(w, 403, "admin access required")
			return
		}
		next(w, r, u)
	})
}

// requireMember checks the caller's membership in the project. With
// needEditor set, VIEWER members are rejected too. Global admins bypass
// the membership check.
func (a *api) requireMember(w http.ResponseWriter, r *http.Request, u User, projectID string, needEditor bool) bool {
	if isGlobalAdmin(u) {
		return true
	}
	role, err := a.store.MemberRole(r.Context(), projectID, u.ID)
	if err != nil {
		writeError(w, 403, "not a project member")
		return false
	}
	if needEditor && role == RoleViewer {
		writeError(w, 403, "insufficient permissions")
		return false
	}
	return true
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /auth/register", a.withRateLimit("register", 10, time.Minute, a.handleRegister))
	mux.HandleFunc("POST /auth/login", a.withRateLimit("login", 20, time.Minute, a.handleLogin))
	mux.HandleFunc("POST /auth/logout", a.handleLogout)

	mux.HandleFunc("GET /profile", a.requireAuth(a.handleGetProfile))
	mux.HandleFunc("PATCH /profile", a.requireAuth(a.handleUpdateProfile))
	mux.HandleFunc("PATCH /profile/password", a.requireAuth(a.handleUpdatePassword))

	mux.HandleFunc("GET /projects", a.requireAuth(a.handleListProjects))
	mux.HandleFunc("POST /projects", a.requireAuth(a.handleCreateProject))
	mux.HandleFunc("GET /projects/{id}", a.requireAuth(a.handleGetProject))
	mux.HandleFunc("PATCH /projects/{id}", a.requireAuth(a.handleUpdateProject))
	mux.HandleFunc("DELETE /projects/{id}", a.requireAuth(a.handleDeleteProject))
	mux.HandleFunc("POST /projects/{id}/members", a.requireAuth(a.handleAddMember))
	mux.HandleFunc("DELETE /projects/{id}/members/{userId}", a.requireAuth(a.handleRemoveMember))
	mux.HandleFunc("POST /projects/{id}/labels", a.requireAuth(a.handleCreateLabel))
	mux.HandleFunc("POST /projects/{id}/media", a.requireAuth(a.handleUploadProjectMedia))

	mux.HandleFunc("POST /boards", a.requireAuth(a.handleCreateBoard))
	mux.HandleFunc("DELETE /boards/{id}", a.requireAuth(a.handleDeleteBoard))

	mux.HandleFunc("POST /lists", a.requireAuth(a.handleCreateList))
	mux.HandleFunc("PATCH /lists/{id}", a.requireAuth(a.handleUpdateList))
	mux.HandleFunc("DELETE /lists/{id}", a.requireAuth(a.handleDeleteList))

	mux.HandleFunc("POST /cards", a.requireAuth(a.handleCreateCard))
	mux.HandleFunc("GET /cards/{id}", a.requireAuth(a.handleGetCard))
	mux.HandleFunc("PUT /cards/{id}", a.requireAuth(a.handleUpdateCard))
	mux.HandleFunc("DELETE /cards/{id}", a.requireAuth(a.handleDeleteCard))
	mux.HandleFunc("PATCH /cards/{id}/move", a.requireAuth(a.handleMoveCard))
	mux.HandleFunc("POST /cards/{id}/assign", a.requireAuth(a.handleAssignCard))
	mux.HandleFunc("POST /cards/{id}/labels", a.requireAuth(a.handleToggleCardLabel))
	mux.HandleFunc("POST /cards/{id}/attachments", a.requireAuth(a.handleUploadAttachment))

	mux.HandleFunc("POST /comments", a.requireAuth(a.handleCreateComment))

	mux.HandleFunc("GET /admin/users", a.requireAdmin(a.handleAdminListUsers))
	mux.HandleFunc("POST /admin/users", a.requireAdmin(a.handleAdminCreateUser))
	mux.HandleFunc("PATCH /admin/users/{id}", a.requireAdmin(a.handleAdminUpdateUser))
	mux.HandleFunc("DELETE /admin/users/{id}", a.requireAdmin(a.handleAdminDeleteUser))
	mux.HandleFunc("GET /admin/projects", a.requireAdmin(a.handleAdminListProjects))
	mux.HandleFunc("POST /admin/projects", a.requireAdmin(a.handleAdminCreateProject))
	mux.HandleFunc("DELETE /admin/projects/{id}", a.requireAdmin(a.handleAdminDeleteProject))
	mux.HandleFunc("POST /admin/projects/boards", a.requireAdmin(a.handleAdminCreateBoard))
	mux.HandleFunc("POST /admin/labels", a.requireAdmin(a.handleAdminCreateLabel))
	mux.HandleFunc("PATCH /admin/labels/{id}", a.requireAdmin(a.handleAdminUpdateLabel))
	mux.HandleFunc("DELETE /admin/labels/{id}", a.requireAdmin(a.handleAdminDeleteLabel))

	return mux
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
