package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/authshield/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "test"), mr
}

func testSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		UserID:    "u-1",
		Email:     "a@example.com",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestEncodeDecode(t *testing.T) {
	in := testSession("ignored")
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != formatVersionV1 {
		t.Fatalf("version byte = %d", data[0])
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.Email != in.Email || out.CreatedAt != in.CreatedAt || out.ExpiresAt != in.ExpiresAt {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
	if out.ID != "" {
		t.Fatal("id is not part of the record")
	}
}

func TestDecodeRejectsCorruptRecords(t *testing.T) {
	valid, err := Encode(testSession("x"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := map[string][]byte{
		"empty":       nil,
		"bad version": append([]byte{9}, valid[1:]...),
		"truncated":   valid[:len(valid)-3],
		"trailing":    append(append([]byte{}, valid...), 0),
	}
	for name, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

func TestStoreSaveGetDelete(t *testing.T) {
	store, mr := newStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-1")

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("test:s:sid-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "sid-1" || got.UserID != "u-1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("count after delete = %d", n)
	}
	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil || len(ids) != 0 {
		t.Fatalf("index not cleaned: %v %v", ids, err)
	}
}

func TestStoreGetExpiredDeletes(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-old")); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := store.Get(ctx, "sid-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestStoreSaveRejectsExpired(t *testing.T) {
	store, _ := newStoreTest(t)
	sess := testSession("sid")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(context.Background(), sess); err == nil {
		t.Fatal("expected error saving expired session")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSession(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.DeleteAllForUser(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s still present", id)
		}
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestStoreRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewStore(rdb, "test")
	mr.Close()

	if _, err := store.Get(context.Background(), "x"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func newResolver(t *testing.T) (*Resolver, *jwt.Manager) {
	t.Helper()
	store, _ := newStoreTest(t)
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	return &Resolver{Tokens: tokens, Store: store}, tokens
}

func TestResolver(t *testing.T) {
	r, tokens := newResolver(t)
	ctx := context.Background()

	sess := testSession("sid-1")
	if err := r.Store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	token, err := tokens.CreateAccess(sess.UserID, sess.ID, sess.Email)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	bearer := http.Header{"Authorization": {"Bearer " + token}}
	got, err := r.Resolve(ctx, bearer)
	if err != nil || got.ID != "sid-1" {
		t.Fatalf("bearer resolve: %+v %v", got, err)
	}

	cookie := http.Header{"Cookie": {DefaultCookieName + "=" + token}}
	if id, ok := r.UserID(ctx, cookie); !ok || id != "u-1" {
		t.Fatalf("cookie UserID = %q %v", id, ok)
	}

	if _, err := r.Resolve(ctx, http.Header{}); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := r.Resolve(ctx, http.Header{"Authorization": {"Bearer garbage"}}); !errors.Is(err, jwt.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := r.Store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := r.UserID(ctx, bearer); ok {
		t.Fatal("deleted session must not resolve")
	}
}

func TestResolverRejectsForeignSession(t *testing.T) {
	r, tokens := newResolver(t)
	ctx := context.Background()
	if err := r.Store.Save(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	token, _ := tokens.CreateAccess("someone-else", "sid-1", "")
	_, err := r.Resolve(ctx, http.Header{"Authorization": {"Bearer " + token}})
	if !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestTokenPrefersBearer(t *testing.T) {
	h := http.Header{
		"Authorization": {"bearer header-token"},
		"Cookie":        {"c=cookie-token"},
	}
	if got := Token(h, "c"); got != "header-token" {
		t.Fatalf("Token() = %q", got)
	}
	h.Del("Authorization")
	if got := Token(h, "c"); got != "cookie-token" {
		t.Fatalf("Token() = %q", got)
	}
	if got := Token(http.Header{"Authorization": {"Basic abc"}}, ""); got != "" {
		t.Fatalf("Token() = %q", got)
	}
}

func FuzzSessionDecode(f *testing.F) {
	if seed, err := Encode(testSession("fuzz")); err == nil {
		f.Add(seed)
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err == nil && sess == nil {
			t.Fatal("Decode returned nil session without error")
		}
	})
}
