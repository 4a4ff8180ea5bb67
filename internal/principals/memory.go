package principals

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
	"github.com/rolegate/rolegate/internal/token"
)

// MemoryRepository is an in-process Repository used by tests. Username and email
// uniqueness per kind mirrors the unique indexes of the SQL schema.
type MemoryRepository struct {
	mu     sync.Mutex
	byKind map[shared.PrincipalKind]map[int64]Principal
	nextID map[shared.PrincipalKind]int64

	roles  *rbac.MemoryRepository
	tokens *token.MemoryRepository

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryRepository returns an empty repository. roles and tokens may be nil; when set,
// initial role assignment and cascading deletes reach them.
func NewMemoryRepository(roles *rbac.MemoryRepository, tokens *token.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		byKind: map[shared.PrincipalKind]map[int64]Principal{
			shared.KindWeb: {},
			shared.KindAPI: {},
		},
		nextID: map[shared.PrincipalKind]int64{},
		roles:  roles,
		tokens: tokens,
	}
}

func (m *MemoryRepository) table(kind shared.PrincipalKind) (map[int64]Principal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	t, ok := m.byKind[kind]
	if !ok {
		return nil, shared.Invalid("kind", "must be web or api")
	}
	return t, nil
}

func conflict(t map[int64]Principal, self int64, username, email string) error {
	for id, p := range t {
		if id == self {
			continue
		}
		if p.Username == username {
			return shared.Duplicate("username")
		}
		if p.Email == email {
			return shared.Duplicate("email")
		}
	}
	return nil
}

func clonePrincipal(p Principal) Principal {
	if p.Profile != nil {
		pf := *p.Profile
		p.Profile = &pf
	}
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		p.LastLoginAt = &t
	}
	return p
}

// Create stores the principal and assigns its initial role. A failed assignment
// removes the principal again.
func (m *MemoryRepository) Create(ctx context.Context, in NewPrincipal) (Principal, error) {
	if in.RoleID > 0 && m.roles != nil {
		if _, err := m.roles.GetRole(ctx, in.RoleID); err != nil {
			return Principal{}, err
		}
	}
	m.mu.Lock()
	t, err := m.table(in.Kind)
	if err != nil {
		m.mu.Unlock()
		return Principal{}, err
	}
	if !in.Status.Valid() {
		m.mu.Unlock()
		return Principal{}, shared.Missing("status")
	}
	if err := conflict(t, 0, in.Username, in.Email); err != nil {
		m.mu.Unlock()
		return Principal{}, err
	}
	m.nextID[in.Kind]++
	now := time.Now().UTC()
	p := Principal{
		ID:             m.nextID[in.Kind],
		Kind:           in.Kind,
		Username:       in.Username,
		Email:          in.Email,
		CredentialHash: in.CredentialHash,
		Status:         in.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Kind == shared.KindAPI {
		p.Description = in.Description
	}
	if in.Kind == shared.KindWeb && in.Profile != nil {
		pf := *in.Profile
		p.Profile = &pf
	}
	t[p.ID] = p
	m.mu.Unlock()

	if in.RoleID > 0 && m.roles != nil {
		if err := m.roles.ReplaceRole(ctx, p.Ref(), in.RoleID); err != nil {
			m.mu.Lock()
			delete(t, p.ID)
			m.mu.Unlock()
			return Principal{}, err
		}
	}
	return clonePrincipal(p), nil
}

func (m *MemoryRepository) find(kind shared.PrincipalKind, match func(Principal) bool) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(kind)
	if err != nil {
		return Principal{}, err
	}
	for _, p := range t {
		if match(p) {
			return clonePrincipal(p), nil
		}
	}
	return Principal{}, shared.Missing("principal")
}

// FindByID fetches a principal by id.
func (m *MemoryRepository) FindByID(ctx context.Context, kind shared.PrincipalKind, id int64) (Principal, error) {
	return m.find(kind, func(p Principal) bool { return p.ID == id })
}

// FindByUsername fetches a principal by normalized username.
func (m *MemoryRepository) FindByUsername(ctx context.Context, kind shared.PrincipalKind, username string) (Principal, error) {
	return m.find(kind, func(p Principal) bool { return p.Username == username })
}

// FindByEmail fetches a principal by normalized email.
func (m *MemoryRepository) FindByEmail(ctx context.Context, kind shared.PrincipalKind, email string) (Principal, error) {
	return m.find(kind, func(p Principal) bool { return p.Email == email })
}

// Update applies c as one unit: the role is checked before anything is written and a
// failed role replacement restores the previous record.
func (m *MemoryRepository) Update(ctx context.Context, kind shared.PrincipalKind, id int64, c Change) (Principal, error) {
	if c.RoleID > 0 && m.roles != nil {
		if _, err := m.roles.GetRole(ctx, c.RoleID); err != nil {
			return Principal{}, err
		}
	}
	m.mu.Lock()
	t, err := m.table(kind)
	if err != nil {
		m.mu.Unlock()
		return Principal{}, err
	}
	before, ok := t[id]
	if !ok {
		m.mu.Unlock()
		return Principal{}, shared.Missing("principal")
	}
	p, err := applyChange(t, clonePrincipal(before), c)
	if err != nil {
		m.mu.Unlock()
		return Principal{}, err
	}
	t[id] = p
	m.mu.Unlock()

	if c.RoleID > 0 && m.roles != nil {
		if err := m.roles.ReplaceRole(ctx, p.Ref(), c.RoleID); err != nil {
			m.mu.Lock()
			t[id] = before
			m.mu.Unlock()
			return Principal{}, err
		}
	}
	return clonePrincipal(p), nil
}

func applyChange(t map[int64]Principal, p Principal, c Change) (Principal, error) {
	f := c.Fields
	if f.Username != nil {
		p.Username = *f.Username
	}
	if f.Email != nil {
		p.Email = *f.Email
	}
	if err := conflict(t, p.ID, p.Username, p.Email); err != nil {
		return Principal{}, err
	}
	if f.CredentialHash != nil {
		p.CredentialHash = *f.CredentialHash
	}
	if f.Status != nil {
		if !f.Status.Valid() {
			return Principal{}, shared.Missing("status")
		}
		p.Status = *f.Status
	}
	if f.Description != nil && p.Kind == shared.KindAPI {
		p.Description = *f.Description
	}
	if c.Profile != nil && p.Kind == shared.KindWeb {
		var current Profile
		if p.Profile != nil {
			current = *p.Profile
		}
		next := c.Profile.Apply(current)
		p.Profile = &next
	}
	if !f.Empty() || c.Profile != nil {
		p.UpdatedAt = time.Now().UTC()
	}
	return p, nil
}

// UpdateProfile merges fields into the web principal's profile.
func (m *MemoryRepository) UpdateProfile(ctx context.Context, id int64, f ProfileFields) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(shared.KindWeb)
	if err != nil {
		return Profile{}, err
	}
	p, ok := t[id]
	if !ok {
		return Profile{}, shared.Missing("principal")
	}
	var current Profile
	if p.Profile != nil {
		current = *p.Profile
	}
	next := f.Apply(current)
	p.Profile = &next
	t[id] = p
	return next, nil
}

// UpdateCredentialHash stores a new password hash.
func (m *MemoryRepository) UpdateCredentialHash(ctx context.Context, kind shared.PrincipalKind, id int64, hash string) error {
	_, err := m.Update(ctx, kind, id, Change{Fields: UpdateFields{CredentialHash: &hash}})
	return err
}

// UpdateLastLogin records a successful login time.
func (m *MemoryRepository) UpdateLastLogin(ctx context.Context, kind shared.PrincipalKind, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(kind)
	if err != nil {
		return err
	}
	p, ok := t[id]
	if !ok {
		return shared.Missing("principal")
	}
	at = at.UTC()
	p.LastLoginAt = &at
	t[id] = p
	return nil
}

// Delete removes the principal with its role assignments and stored token.
func (m *MemoryRepository) Delete(ctx context.Context, kind shared.PrincipalKind, id int64) error {
	m.mu.Lock()
	t, err := m.table(kind)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := t[id]; !ok {
		m.mu.Unlock()
		return shared.Missing("principal")
	}
	delete(t, id)
	m.mu.Unlock()

	ref := shared.PrincipalRef{Kind: kind, ID: id}
	if m.roles != nil {
		m.roles.RemovePrincipal(ref)
	}
	if m.tokens != nil && kind == shared.KindAPI {
		m.tokens.Remove(id)
	}
	return nil
}

// ListAll returns every principal of kind ordered by id.
func (m *MemoryRepository) ListAll(ctx context.Context, kind shared.PrincipalKind) ([]Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(kind)
	if err != nil {
		return nil, err
	}
	out := make([]Principal, 0, len(t))
	for _, p := range t {
		out = append(out, clonePrincipal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
