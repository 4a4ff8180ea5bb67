package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolegate/rolegate/internal/shared"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, repo Repository) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(testSecret, 24*time.Hour, repo, nil, WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func alice() Identity {
	return Identity{Ref: shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, Username: "alice", Email: "alice@example.com"}
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService([]byte("short"), time.Hour, nil, nil)
	assert.Error(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, clock := newTestService(t, nil)
	roles := []shared.RoleRef{{ID: 2, Name: "user"}}

	issued, err := svc.Issue(alice(), roles)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(24*time.Hour), issued.ExpiresAt)
	assert.NotEmpty(t, issued.ID)

	p, err := svc.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, p.Ref)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, roles, p.Roles)
	assert.Equal(t, issued.ID, p.TokenID)
}

func TestIssueUniqueTokenIDs(t *testing.T) {
	svc, _ := newTestService(t, nil)
	a, err := svc.Issue(alice(), nil)
	require.NoError(t, err)
	b, err := svc.Issue(alice(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	svc, clock := newTestService(t, nil)
	issued, err := svc.Issue(alice(), nil)
	require.NoError(t, err)

	clock.t = issued.ExpiresAt.Add(-time.Second)
	_, err = svc.Verify(issued.Token)
	require.NoError(t, err, "valid one second before expiry")

	clock.t = issued.ExpiresAt
	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated, "expired at exactly exp")

	clock.t = issued.ExpiresAt.Add(time.Hour)
	_, err = svc.Verify(issued.Token)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyRejectsTampering(t *testing.T) {
	svc, _ := newTestService(t, nil)
	issued, err := svc.Issue(alice(), []shared.RoleRef{{ID: 2, Name: "user"}})
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = svc.Verify(forged)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	other, err := NewService([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, nil, nil)
	require.NoError(t, err)
	_, err = other.Verify(issued.Token)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	svc, clock := newTestService(t, nil)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))},
		PrincipalID:      1,
		Kind:             shared.KindWeb,
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(none)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = svc.Verify(hs512)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	svc, _ := newTestService(t, nil)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{PrincipalID: 1, Kind: shared.KindWeb}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyGarbage(t *testing.T) {
	svc, _ := newTestService(t, nil)
	for _, raw := range []string{"", "   ", "not.a.jwt", "abc"} {
		_, err := svc.Verify(raw)
		assert.ErrorIs(t, err, shared.ErrUnauthenticated, raw)
	}
}

func TestPersistLatestAPIOnly(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	issued, err := svc.Issue(alice(), nil)
	require.NoError(t, err)
	err = svc.PersistLatest(ctx, alice().Ref, issued)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, 0, repo.Len())

	bot := shared.PrincipalRef{Kind: shared.KindAPI, ID: 9}
	first, err := svc.Issue(Identity{Ref: bot, Username: "bot"}, nil)
	require.NoError(t, err)
	second, err := svc.Issue(Identity{Ref: bot, Username: "bot"}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.PersistLatest(ctx, bot, first))
	require.NoError(t, svc.PersistLatest(ctx, bot, second))
	assert.Equal(t, 1, repo.Len())

	rec, err := svc.Latest(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Token, rec.Token)
	assert.Equal(t, second.ID, rec.TokenID)
}

func TestPruneExpired(t *testing.T) {
	repo := NewMemoryRepository()
	svc, clock := newTestService(t, repo)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		ref := shared.PrincipalRef{Kind: shared.KindAPI, ID: id}
		issued, err := svc.Issue(Identity{Ref: ref}, nil)
		require.NoError(t, err)
		require.NoError(t, svc.PersistLatest(ctx, ref, issued))
		clock.t = clock.t.Add(time.Hour)
	}

	// Tokens expire at +24h, +25h and +26h from the start.
	clock.t = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	n, err := svc.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, repo.Len())
}
