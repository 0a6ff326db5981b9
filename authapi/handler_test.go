package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/metrics"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fixture struct {
	handler *Handler
	metrics *metrics.Metrics
	audit   *audit.ChannelSink
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authshield-test",
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	hasher, err := password.New(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1,
		SaltLength: 16, KeyLength: 32,
		MinLength: 8, MaxLength: 128,
	})
	if err != nil {
		t.Fatalf("password: %v", err)
	}

	m := metrics.New(metrics.Config{Enabled: true})
	sink := audit.NewChannelSink(64)
	h, err := New(Config{
		Users:     NewUserStore(rdb, "test"),
		Sessions:  session.NewStore(rdb, "test"),
		Tokens:    tokens,
		Passwords: hasher,
		Metrics:   m,
		Audit:     sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{handler: h, metrics: m, audit: sink, mr: mr}
}

func (f *fixture) do(method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestSignUpSignInSessionSignOut(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/sign-up/email", `{"email":"Ada@Example.com","password":"correct horse","name":"Ada"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-up status = %d body %s", rec.Code, rec.Body.String())
	}
	signedUp := decode[authResponse](t, rec)
	if signedUp.Token == "" || signedUp.User.Email != "ada@example.com" || signedUp.User.Name != "Ada" {
		t.Fatalf("unexpected sign-up response %+v", signedUp)
	}

	rec = f.do(http.MethodPost, "/sign-in/email", `{"email":"ada@example.com","password":"correct horse"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-in status = %d body %s", rec.Code, rec.Body.String())
	}
	signedIn := decode[authResponse](t, rec)
	if signedIn.User.ID != signedUp.User.ID {
		t.Fatal("sign-in returned a different user")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.DefaultCookieName || !cookies[0].HttpOnly || cookies[0].Value != signedIn.Token {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	rec = f.do(http.MethodGet, "/get-session", "", func(r *http.Request) { r.AddCookie(cookies[0]) })
	got := decode[sessionResponse](t, rec)
	if got.User == nil || got.User.ID != signedUp.User.ID || got.Session.UserID != signedUp.User.ID {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.Session.ExpiresAt.After(got.Session.CreatedAt) {
		t.Fatal("session expiry must follow creation")
	}

	rec = f.do(http.MethodPost, "/sign-out", "", bearer(signedIn.Token))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("sign-out = %d %s", rec.Code, rec.Body.String())
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("sign-out must clear the cookie, got %+v", c)
	}

	rec = f.do(http.MethodGet, "/get-session", "", bearer(signedIn.Token))
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("signed-out token still resolves: %s", rec.Body.String())
	}

	// the sign-up session is independent of the signed-out one
	rec = f.do(http.MethodGet, "/get-session", "", bearer(signedUp.Token))
	if strings.TrimSpace(rec.Body.String()) == "null" {
		t.Fatal("sign-up session should still be live")
	}

	if f.metrics.Value(metrics.SignUpSuccess) != 1 || f.metrics.Value(metrics.SignInSuccess) != 1 || f.metrics.Value(metrics.SignOut) != 1 {
		t.Fatalf("unexpected metrics %+v", f.metrics.Snapshot().Counters)
	}
}

func TestSignUpErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"malformed", `{"email":`, http.StatusBadRequest, "Invalid request body"},
		{"bad email", `{"email":"nope","password":"correct horse"}`, http.StatusBadRequest, "Invalid email"},
		{"short password", `{"email":"a@example.com","password":"short"}`, http.StatusBadRequest, "Password too short"},
	}
	for _, tt := range tests {
		rec := f.do(http.MethodPost, "/sign-up/email", tt.body, nil)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d", tt.name, rec.Code)
		}
		if got := decode[map[string]string](t, rec)["error"]; got != tt.msg {
			t.Fatalf("%s: error = %q", tt.name, got)
		}
	}

	body := `{"email":"dup@example.com","password":"correct horse"}`
	if rec := f.do(http.MethodPost, "/sign-up/email", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("first sign-up = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/sign-up/email", `{"email":"DUP@example.com","password":"another one"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate sign-up = %d", rec.Code)
	}
	if f.metrics.Value(metrics.SignUpFailure) != 4 {
		t.Fatalf("sign-up failures = %d", f.metrics.Value(metrics.SignUpFailure))
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodPost, "/sign-up/email", `{"email":"a@example.com","password":"correct horse"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("sign-up = %d", rec.Code)
	}
	// drain the sign-up audit event
	<-f.audit.Events()

	for _, body := range []string{
		`{"email":"a@example.com","password":"wrong password"}`,
		`{"email":"missing@example.com","password":"correct horse"}`,
	} {
		rec := f.do(http.MethodPost, "/sign-in/email", body, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d for %s", rec.Code, body)
		}
		if got := decode[map[string]string](t, rec)["error"]; got != "Invalid email or password" {
			t.Fatalf("error = %q", got)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Fatal("failed sign-in must not set a cookie")
		}
		ev := <-f.audit.Events()
		if ev.EventType != audit.EventSignIn || ev.Success {
			t.Fatalf("unexpected audit event %+v", ev)
		}
	}
	if f.metrics.Value(metrics.SignInFailure) != 2 {
		t.Fatalf("sign-in failures = %d", f.metrics.Value(metrics.SignInFailure))
	}
}

func TestGetSessionWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/get-session", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("get-session = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignOutWithoutSessionSucceeds(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/sign-out", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-out = %d", rec.Code)
	}
	if f.metrics.Value(metrics.SignOut) != 0 {
		t.Fatal("anonymous sign-out must not count")
	}
}

func TestOkAndUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/ok", "", nil); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("ok = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/sign-in/email", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET sign-in = %d", rec.Code)
	}
}

func TestUserStoreCreateConcurrentEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := f.handler.users

	u, err := store.Create(ctx, "race@example.com", "A", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, " Race@Example.com ", "B", "hash"); err != ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := store.ByID(ctx, u.ID)
	if err != nil || got.Email != "race@example.com" || got.Name != "A" {
		t.Fatalf("ByID = %+v, %v", got, err)
	}
	if _, err := store.ByID(ctx, "missing"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
