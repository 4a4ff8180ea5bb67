package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rolegate/rolegate/internal/shared"
)

// MinSecretLength is the shortest accepted signing secret, in bytes.
const MinSecretLength = 32

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Service signs and verifies HS256 tokens and tracks the latest token per API principal.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	repo   Repository
	logger *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service. repo may be nil when no principal persists tokens.
func NewService(secret []byte, ttl time.Duration, repo Repository, logger *slog.Logger, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token: secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
		repo:   repo,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for id carrying the role snapshot. Expiry is issuance plus TTL.
func (s *Service) Issue(id Identity, roles []shared.RoleRef) (Issued, error) {
	if !id.Ref.Kind.Valid() || id.Ref.ID <= 0 {
		return Issued{}, shared.Invalid("principal", "is required")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	jti := uuid.NewString()
	if roles == nil {
		roles = []shared.RoleRef{}
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Ref.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        jti,
		},
		PrincipalID: id.Ref.ID,
		Username:    id.Username,
		Email:       id.Email,
		Kind:        id.Ref.Kind,
		Roles:       roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}
	return Issued{Token: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature and expiry only. Any failure is shared.ErrUnauthenticated.
func (s *Service) Verify(raw string) (*shared.PrincipalContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, shared.ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("token rejected", slog.Any("error", err))
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, shared.ErrUnauthenticated
	}
	if !claims.Kind.Valid() || claims.PrincipalID <= 0 {
		return nil, shared.ErrUnauthenticated
	}
	return claims.principal(), nil
}

// PersistLatest records issued as the latest token of an API principal, replacing any previous one.
func (s *Service) PersistLatest(ctx context.Context, ref shared.PrincipalRef, issued Issued) error {
	if ref.Kind != shared.KindAPI {
		return shared.Invalid("kind", "only api principals persist tokens")
	}
	if s.repo == nil {
		return shared.Unavailable("token: persist", errors.New("no token repository configured"))
	}
	return s.repo.Upsert(ctx, Record{
		PrincipalID: ref.ID,
		Token:       issued.Token,
		TokenID:     issued.ID,
		ExpiresAt:   issued.ExpiresAt,
	})
}

// Latest returns the stored token of an API principal.
func (s *Service) Latest(ctx context.Context, principalID int64) (Record, error) {
	if s.repo == nil {
		return Record{}, shared.Missing("token")
	}
	return s.repo.Latest(ctx, principalID)
}

// PruneExpired deletes stored tokens whose expiry has passed and returns how many were removed.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned expired api tokens", slog.Int64("count", n))
	}
	return n, nil
}
