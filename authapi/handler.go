package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/metrics"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxRequestBytes = 64 << 10

// Config wires the handler's collaborators. Users, Sessions, Tokens and
// Passwords are required.
type Config struct {
	Users     *UserStore
	Sessions  *session.Store
	Tokens    *jwt.Manager
	Passwords *password.Hasher

	CookieName   string
	SecureCookie bool

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Audit    audit.Sink
	ClientIP func(*http.Request) string
}

// Handler serves the authentication routes. Mount it under the auth base path.
type Handler struct {
	users     *UserStore
	sessions  *session.Store
	tokens    *jwt.Manager
	passwords *password.Hasher
	resolver  *session.Resolver

	cookieName   string
	secureCookie bool

	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    audit.Sink
	clientIP func(*http.Request) string

	// verified against on unknown emails so both paths cost one Argon2 run
	dummyHash string
	router    chi.Router
}

// New builds a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Users == nil || cfg.Sessions == nil || cfg.Tokens == nil || cfg.Passwords == nil {
		return nil, errors.New("authapi: users, sessions, tokens and passwords are required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = session.DefaultCookieName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOpSink{}
	}

	dummy, err := cfg.Passwords.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("authapi: dummy hash: %w", err)
	}

	h := &Handler{
		users:        cfg.Users,
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		passwords:    cfg.Passwords,
		resolver:     &session.Resolver{Tokens: cfg.Tokens, Store: cfg.Sessions, CookieName: cfg.CookieName},
		cookieName:   cfg.CookieName,
		secureCookie: cfg.SecureCookie,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		audit:        cfg.Audit,
		clientIP:     cfg.ClientIP,
		dummyHash:    dummy,
	}

	r := chi.NewRouter()
	r.Post("/sign-up/email", h.signUp)
	r.Post("/sign-in/email", h.signIn)
	r.Post("/sign-out", h.signOut)
	r.Get("/get-session", h.getSession)
	r.Get("/ok", h.ok)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	h.router = r

	return h, nil
}

// Resolver returns the session resolver sharing this handler's token and
// session configuration.
func (h *Handler) Resolver() *session.Resolver {
	return h.resolver
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type sessionView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	Session sessionView `json:"session"`
	User    *User       `json:"user"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(r, audit.EventSignUp, metrics.SignUpFailure, "", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEmail(in.Email) {
		h.fail(r, audit.EventSignUp, metrics.SignUpFailure, "", errors.New("invalid email"))
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}
	if err := h.passwords.CheckLength(in.Password); err != nil {
		h.fail(r, audit.EventSignUp, metrics.SignUpFailure, "", err)
		msg := "Password too short"
		if errors.Is(err, password.ErrTooLong) {
			msg = "Password too long"
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := h.passwords.Hash(in.Password)
	if err != nil {
		h.internal(w, r, audit.EventSignUp, metrics.SignUpFailure, err)
		return
	}
	user, err := h.users.Create(r.Context(), in.Email, in.Name, hash)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			h.fail(r, audit.EventSignUp, metrics.SignUpFailure, "", err)
			writeError(w, http.StatusUnprocessableEntity, "User already exists")
			return
		}
		h.internal(w, r, audit.EventSignUp, metrics.SignUpFailure, err)
		return
	}

	token, sess, err := h.startSession(r.Context(), user)
	if err != nil {
		h.internal(w, r, audit.EventSignUp, metrics.SignUpFailure, err)
		return
	}

	h.succeed(r, audit.EventSignUp, metrics.SignUpSuccess, sess)
	h.setCookie(w, token, sess)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(r, audit.EventSignIn, metrics.SignInFailure, "", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stored, err := h.users.byEmail(r.Context(), in.Email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		h.internal(w, r, audit.EventSignIn, metrics.SignInFailure, err)
		return
	}

	encoded := h.dummyHash
	if stored != nil {
		encoded = stored.PasswordHash
	}
	match, verr := h.passwords.Verify(in.Password, encoded)
	if stored == nil || verr != nil || !match {
		userID := ""
		if stored != nil {
			userID = stored.ID
		}
		h.fail(r, audit.EventSignIn, metrics.SignInFailure, userID, errors.New("invalid credentials"))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if need, _ := h.passwords.NeedsRehash(stored.PasswordHash); need {
		if rehashed, err := h.passwords.Hash(in.Password); err == nil {
			if err := h.users.setPasswordHash(r.Context(), stored.ID, rehashed); err != nil {
				h.logger.Warn("password rehash failed", "user_id", stored.ID, "error", err)
			}
		}
	}

	token, sess, err := h.startSession(r.Context(), &stored.User)
	if err != nil {
		h.internal(w, r, audit.EventSignIn, metrics.SignInFailure, err)
		return
	}

	h.succeed(r, audit.EventSignIn, metrics.SignInSuccess, sess)
	h.setCookie(w, token, sess)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: &stored.User})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess, err := h.resolver.Resolve(r.Context(), r.Header)
	if err == nil {
		if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
			h.logger.Error("sign-out: delete session", "session_id", sess.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		h.succeed(r, audit.EventSignOut, metrics.SignOut, sess)
	}
	h.clearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.resolver.Resolve(r.Context(), r.Header)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			h.logger.Error("get-session: resolve", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, nil)
		return
	}

	user, err := h.users.ByID(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		h.logger.Error("get-session: load user", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Session: sessionView{
			ID:        sess.ID,
			UserID:    sess.UserID,
			CreatedAt: time.Unix(sess.CreatedAt, 0).UTC(),
			ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
		},
		User: user,
	})
}

func (h *Handler) ok(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) startSession(ctx context.Context, user *User) (string, *session.Session, error) {
	now := time.Now()
	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(h.tokens.TTL()).Unix(),
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		return "", nil, err
	}
	token, err := h.tokens.CreateAccess(user.ID, sess.ID, user.Email)
	if err != nil {
		_ = h.sessions.Delete(ctx, sess.ID)
		return "", nil, err
	}
	return token, sess, nil
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Unix(sess.ExpiresAt, 0),
		MaxAge:   int(time.Until(time.Unix(sess.ExpiresAt, 0)).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) succeed(r *http.Request, eventType string, id metrics.ID, sess *session.Session) {
	h.metrics.Inc(id)
	h.audit.Emit(r.Context(), audit.Event{
		EventType: eventType,
		Outcome:   "success",
		Path:      r.URL.Path,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		IP:        h.ip(r),
		Success:   true,
	})
}

func (h *Handler) fail(r *http.Request, eventType string, id metrics.ID, userID string, err error) {
	h.metrics.Inc(id)
	h.audit.Emit(r.Context(), audit.Event{
		EventType: eventType,
		Outcome:   "failure",
		Path:      r.URL.Path,
		UserID:    userID,
		IP:        h.ip(r),
		Error:     err.Error(),
	})
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, eventType string, id metrics.ID, err error) {
	h.logger.Error("auth request failed", "path", r.URL.Path, "event", eventType, "error", err)
	h.fail(r, eventType, id, "", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *Handler) ip(r *http.Request) string {
	if h.clientIP == nil {
		return ""
	}
	return h.clientIP(r)
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Name == "" && addr.Address == email
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
