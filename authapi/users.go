package authapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type storedUser struct {
	User
	PasswordHash string
}

// UserStore keeps accounts in Redis hashes with a unique email index.
type UserStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewUserStore creates a UserStore. prefix namespaces keys ("au" when empty).
func NewUserStore(client redis.UniversalClient, prefix string) *UserStore {
	if prefix == "" {
		prefix = "au"
	}
	return &UserStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *UserStore) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *UserStore) emailKey(email string) string {
	return s.prefix + ":email:" + normalizeEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a user. The email claim is taken with SETNX first so two
// concurrent sign-ups for one address cannot both succeed.
func (s *UserStore) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	u := &User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}

	claimed, err := s.redis.SetNX(ctx, s.emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	if !claimed {
		return nil, ErrEmailTaken
	}

	err = s.redis.HSet(ctx, s.userKey(u.ID), map[string]any{
		"email":         u.Email,
		"name":          u.Name,
		"password_hash": passwordHash,
		"created_at":    u.CreatedAt.Unix(),
	}).Err()
	if err != nil {
		// release the claim so the address is not locked out
		_ = s.redis.Del(ctx, s.emailKey(u.Email)).Err()
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return u, nil
}

// ByID loads a user.
func (s *UserStore) ByID(ctx context.Context, id string) (*User, error) {
	su, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &su.User, nil
}

func (s *UserStore) byEmail(ctx context.Context, email string) (*storedUser, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return s.load(ctx, id)
}

func (s *UserStore) load(ctx context.Context, id string) (*storedUser, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}

	var created int64
	if _, err := fmt.Sscan(fields["created_at"], &created); err != nil {
		return nil, fmt.Errorf("user %s: bad created_at: %w", id, err)
	}
	return &storedUser{
		User: User{
			ID:        id,
			Email:     fields["email"],
			Name:      fields["name"],
			CreatedAt: time.Unix(created, 0).UTC(),
		},
		PasswordHash: fields["password_hash"],
	}, nil
}

func (s *UserStore) setPasswordHash(ctx context.Context, id, hash string) error {
	if err := s.redis.HSet(ctx, s.userKey(id), "password_hash", hash).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}
