package protect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newClassifier() *Classifier {
	return &Classifier{
		SignInPath:  "/api/auth/sign-in",
		SignOutPath: "/api/auth/sign-out",
		Identity: IdentityFunc(func(_ context.Context, h http.Header) (string, bool) {
			if h.Get("Authorization") == "Bearer good" {
				return "user-1", true
			}
			return "", false
		}),
		ClientIP: func(r *http.Request) string {
			return r.Header.Get("X-Test-IP")
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		want    Rule
	}{
		{
			name: "sign in with email",
			path: "/api/auth/sign-in/email",
			body: `{"email":"a@example.com","password":"x"}`,
			want: EmailValidation("a@example.com"),
		},
		{
			name: "sign in without email falls to rate limit",
			path: "/api/auth/sign-in/email",
			body: `{"password":"x"}`,
			want: RateLimit(LoopbackFingerprint),
		},
		{
			name: "sign in with malformed json falls to rate limit",
			path: "/api/auth/sign-in/email",
			body: `{"email":`,
			want: RateLimit(LoopbackFingerprint),
		},
		{
			name: "sign in with null email falls to rate limit",
			path: "/api/auth/sign-in/email",
			body: `{"email":null}`,
			want: RateLimit(LoopbackFingerprint),
		},
		{
			name: "sign in with numeric email falls to rate limit",
			path: "/api/auth/sign-in/email",
			body: `{"email":42}`,
			want: RateLimit(LoopbackFingerprint),
		},
		{
			name: "empty email string still validates",
			path: "/api/auth/sign-in/email",
			body: `{"email":""}`,
			want: EmailValidation(""),
		},
		{
			name: "sign out uses shield",
			path: "/api/auth/sign-out",
			want: ShieldValidation(),
		},
		{
			name:    "sign out ignores email body",
			path:    "/api/auth/sign-out",
			body:    `{"email":"a@example.com"}`,
			headers: map[string]string{"Authorization": "Bearer good"},
			want:    ShieldValidation(),
		},
		{
			name:    "other path keyed by user",
			path:    "/api/auth/sign-up/email",
			headers: map[string]string{"Authorization": "Bearer good", "X-Test-IP": "10.0.0.9"},
			want:    RateLimit("user-1"),
		},
		{
			name:    "other path keyed by client ip",
			path:    "/api/auth/sign-up/email",
			headers: map[string]string{"Authorization": "Bearer bad", "X-Test-IP": "10.0.0.9"},
			want:    RateLimit("10.0.0.9"),
		},
		{
			name: "other path falls back to loopback",
			path: "/api/auth/update-user",
			want: RateLimit(LoopbackFingerprint),
		},
	}

	c := newClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got := c.Classify(context.Background(), req, []byte(tt.body))
			if got != tt.want {
				t.Fatalf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyWithoutCollaborators(t *testing.T) {
	c := &Classifier{}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/email", nil)

	got := c.Classify(context.Background(), req, []byte(`{"email":"a@example.com"}`))
	if got != RateLimit(LoopbackFingerprint) {
		t.Fatalf("expected loopback rate limit with empty paths, got %+v", got)
	}
}

func TestDenialResponse(t *testing.T) {
	tests := []struct {
		reason  Reason
		status  int
		message string
		ok      bool
	}{
		{ReasonEmailInvalid, http.StatusBadRequest, "Email validation failed", true},
		{ReasonRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", true},
		{ReasonShieldBlocked, http.StatusForbidden, "Shield validation failed", true},
		{ReasonNone, 0, "", false},
	}
	for _, tt := range tests {
		status, message, ok := DenialResponse(tt.reason)
		if status != tt.status || message != tt.message || ok != tt.ok {
			t.Fatalf("DenialResponse(%v) = (%d, %q, %v)", tt.reason, status, message, ok)
		}
	}
}

func TestOutcomeOfUnknownReasonForwards(t *testing.T) {
	if got := outcomeOf(Deny(Reason(200))); got != OutcomeAllowed {
		t.Fatalf("unknown denial reason should map to allowed, got %v", got)
	}
	if got := outcomeOf(Deny(ReasonRateLimited)); got != OutcomeDeniedRateLimit {
		t.Fatalf("got %v", got)
	}
	if OutcomeAllowed.Err() != nil {
		t.Fatal("allowed outcome must have nil error")
	}
	if OutcomeTimeout.Err() != ErrProtectionTimeout {
		t.Fatal("timeout outcome should map to ErrProtectionTimeout")
	}
}
