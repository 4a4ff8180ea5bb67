package principals

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rolegate/rolegate/internal/platform/db"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

// Repository defines persistence for both principal kinds.
type Repository interface {
	Create(ctx context.Context, in NewPrincipal) (Principal, error)
	FindByID(ctx context.Context, kind shared.PrincipalKind, id int64) (Principal, error)
	FindByUsername(ctx context.Context, kind shared.PrincipalKind, username string) (Principal, error)
	FindByEmail(ctx context.Context, kind shared.PrincipalKind, email string) (Principal, error)
	Update(ctx context.Context, kind shared.PrincipalKind, id int64, c Change) (Principal, error)
	UpdateProfile(ctx context.Context, id int64, fields ProfileFields) (Profile, error)
	UpdateCredentialHash(ctx context.Context, kind shared.PrincipalKind, id int64, hash string) error
	UpdateLastLogin(ctx context.Context, kind shared.PrincipalKind, id int64, at time.Time) error
	Delete(ctx context.Context, kind shared.PrincipalKind, id int64) error
	ListAll(ctx context.Context, kind shared.PrincipalKind) ([]Principal, error)
}

// PGRepository implements Repository using PostgreSQL, one table per kind.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

type kindSQL struct {
	table       string
	roles       string
	description string
	join        string
	profileCols string
}

var (
	webSQL = kindSQL{
		table:       "web_principals",
		roles:       "web_principal_roles",
		description: "''",
		join:        "LEFT JOIN profiles pr ON pr.web_principal_id = p.id",
		profileCols: "pr.id, pr.first_name, pr.last_name, pr.address, pr.phone, pr.document_type_id, pr.document_number, pr.photo_url, pr.birth_date",
	}
	apiSQL = kindSQL{
		table:       "api_principals",
		roles:       "api_principal_roles",
		description: "p.description",
		profileCols: "NULL::bigint, NULL::text, NULL::text, NULL::text, NULL::text, NULL::bigint, NULL::text, NULL::text, NULL::date",
	}
)

func sqlFor(kind shared.PrincipalKind) (kindSQL, error) {
	switch kind {
	case shared.KindWeb:
		return webSQL, nil
	case shared.KindAPI:
		return apiSQL, nil
	}
	return kindSQL{}, shared.Invalid("kind", "must be web or api")
}

func (k kindSQL) selectFrom() string {
	return `SELECT p.id, p.username, p.email, p.password_hash, p.status_id, ` + k.description + `,
		p.last_login_at, p.created_at, p.updated_at, ` + k.profileCols + `
		FROM ` + k.table + ` p ` + k.join
}

func scanPrincipal(row pgx.Row, kind shared.PrincipalKind) (Principal, error) {
	p := Principal{Kind: kind}
	var (
		status    int64
		profileID *int64
		docType   *int64
		first     *string
		last      *string
		address   *string
		phone     *string
		docNum    *string
		photo     *string
		birth     *time.Time
	)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.CredentialHash, &status, &p.Description,
		&p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt,
		&profileID, &first, &last, &address, &phone, &docType, &docNum, &photo, &birth)
	if err != nil {
		return Principal{}, err
	}
	p.Status = Status(status)
	if profileID != nil {
		p.Profile = &Profile{
			FirstName:      deref(first),
			LastName:       deref(last),
			Address:        deref(address),
			Phone:          deref(phone),
			DocumentTypeID: docType,
			DocumentNumber: deref(docNum),
			PhotoURL:       deref(photo),
			BirthDate:      birth,
		}
	}
	return p, nil
}

// Create inserts the principal, its profile and its initial role in one transaction.
func (r *PGRepository) Create(ctx context.Context, in NewPrincipal) (Principal, error) {
	k, err := sqlFor(in.Kind)
	if err != nil {
		return Principal{}, err
	}
	var created Principal
	err = db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var id int64
		var insertErr error
		if in.Kind == shared.KindAPI {
			insertErr = tx.QueryRow(ctx, `INSERT INTO api_principals (username, email, password_hash, status_id, description)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				in.Username, in.Email, in.CredentialHash, int64(in.Status), in.Description).Scan(&id)
		} else {
			insertErr = tx.QueryRow(ctx, `INSERT INTO web_principals (username, email, password_hash, status_id)
				VALUES ($1, $2, $3, $4) RETURNING id`,
				in.Username, in.Email, in.CredentialHash, int64(in.Status)).Scan(&id)
		}
		if insertErr != nil {
			return db.Translate(insertErr, "principal")
		}

		if in.Kind == shared.KindWeb && in.Profile != nil {
			pf := in.Profile
			if _, err := tx.Exec(ctx, `INSERT INTO profiles
				(web_principal_id, first_name, last_name, address, phone, document_type_id, document_number, photo_url, birth_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				id, pf.FirstName, pf.LastName, pf.Address, pf.Phone, pf.DocumentTypeID, pf.DocumentNumber, pf.PhotoURL, pf.BirthDate); err != nil {
				return db.Translate(err, "profile")
			}
		}

		if in.RoleID > 0 {
			ref := shared.PrincipalRef{Kind: in.Kind, ID: id}
			if err := rbac.NewRepository(tx).ReplaceRole(ctx, ref, in.RoleID); err != nil {
				return err
			}
		}

		p, err := scanPrincipal(tx.QueryRow(ctx, k.selectFrom()+` WHERE p.id = $1`, id), in.Kind)
		if err != nil {
			return db.Translate(err, "principal")
		}
		created = p
		return nil
	})
	if err != nil {
		return Principal{}, err
	}
	return created, nil
}

func (r *PGRepository) findOne(ctx context.Context, kind shared.PrincipalKind, where string, arg any) (Principal, error) {
	k, err := sqlFor(kind)
	if err != nil {
		return Principal{}, err
	}
	p, err := scanPrincipal(r.db.QueryRow(ctx, k.selectFrom()+` WHERE `+where, arg), kind)
	if err != nil {
		return Principal{}, db.Translate(err, "principal")
	}
	return p, nil
}

// FindByID fetches a principal by id.
func (r *PGRepository) FindByID(ctx context.Context, kind shared.PrincipalKind, id int64) (Principal, error) {
	return r.findOne(ctx, kind, `p.id = $1`, id)
}

// FindByUsername fetches a principal by its normalized username.
func (r *PGRepository) FindByUsername(ctx context.Context, kind shared.PrincipalKind, username string) (Principal, error) {
	return r.findOne(ctx, kind, `p.username = $1`, username)
}

// FindByEmail fetches a principal by its normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, kind shared.PrincipalKind, email string) (Principal, error) {
	return r.findOne(ctx, kind, `p.email = $1`, email)
}

// Update applies fields, profile and role replacement in one transaction and returns
// the stored principal. Nothing is written when any step fails.
func (r *PGRepository) Update(ctx context.Context, kind shared.PrincipalKind, id int64, c Change) (Principal, error) {
	k, err := sqlFor(kind)
	if err != nil {
		return Principal{}, err
	}
	var updated Principal
	err = db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := updateFields(ctx, tx, k, kind, id, c.Fields); err != nil {
			return err
		}
		if c.Profile != nil && kind == shared.KindWeb {
			if _, err := upsertProfile(ctx, tx, id, *c.Profile); err != nil {
				return err
			}
		}
		if c.RoleID > 0 {
			ref := shared.PrincipalRef{Kind: kind, ID: id}
			if err := rbac.NewRepository(tx).ReplaceRole(ctx, ref, c.RoleID); err != nil {
				return err
			}
		}
		p, err := scanPrincipal(tx.QueryRow(ctx, k.selectFrom()+` WHERE p.id = $1`, id), kind)
		if err != nil {
			return db.Translate(err, "principal")
		}
		updated = p
		return nil
	})
	if err != nil {
		return Principal{}, err
	}
	return updated, nil
}

// updateFields writes the set columns, or locks the row when none are set so a missing
// principal is still reported.
func updateFields(ctx context.Context, q db.DBTX, k kindSQL, kind shared.PrincipalKind, id int64, f UpdateFields) error {
	if f.Empty() {
		var found int64
		err := q.QueryRow(ctx, `SELECT id FROM `+k.table+` WHERE id = $1 FOR UPDATE`, id).Scan(&found)
		return db.Translate(err, "principal")
	}
	var status *int64
	if f.Status != nil {
		v := int64(*f.Status)
		status = &v
	}
	set := `username = COALESCE($2, username),
		email = COALESCE($3, email),
		password_hash = COALESCE($4, password_hash),
		status_id = COALESCE($5, status_id),
		updated_at = NOW()`
	args := []any{id, f.Username, f.Email, f.CredentialHash, status}
	if kind == shared.KindAPI {
		set += `, description = COALESCE($6, description)`
		args = append(args, f.Description)
	}
	var updated int64
	err := q.QueryRow(ctx, `UPDATE `+k.table+` SET `+set+` WHERE id = $1 RETURNING id`, args...).Scan(&updated)
	return db.Translate(err, "principal")
}

// UpdateProfile creates or partially updates the profile of a web principal.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, f ProfileFields) (Profile, error) {
	return upsertProfile(ctx, r.db, id, f)
}

func upsertProfile(ctx context.Context, q db.DBTX, id int64, f ProfileFields) (Profile, error) {
	var p Profile
	err := q.QueryRow(ctx, `INSERT INTO profiles
			(web_principal_id, first_name, last_name, address, phone, document_type_id, document_number, photo_url, birth_date)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), $6, COALESCE($7, ''), COALESCE($8, ''), $9)
		ON CONFLICT ON CONSTRAINT uq_profiles__principal DO UPDATE SET
			first_name = COALESCE($2, profiles.first_name),
			last_name = COALESCE($3, profiles.last_name),
			address = COALESCE($4, profiles.address),
			phone = COALESCE($5, profiles.phone),
			document_type_id = COALESCE($6, profiles.document_type_id),
			document_number = COALESCE($7, profiles.document_number),
			photo_url = COALESCE($8, profiles.photo_url),
			birth_date = COALESCE($9, profiles.birth_date),
			updated_at = NOW()
		RETURNING first_name, last_name, address, phone, document_type_id, document_number, photo_url, birth_date`,
		id, f.FirstName, f.LastName, f.Address, f.Phone, f.DocumentTypeID, f.DocumentNumber, f.PhotoURL, f.BirthDate).
		Scan(&p.FirstName, &p.LastName, &p.Address, &p.Phone, &p.DocumentTypeID, &p.DocumentNumber, &p.PhotoURL, &p.BirthDate)
	if err != nil {
		return Profile{}, db.Translate(err, "principal")
	}
	return p, nil
}

// UpdateCredentialHash stores a new password hash.
func (r *PGRepository) UpdateCredentialHash(ctx context.Context, kind shared.PrincipalKind, id int64, hash string) error {
	k, err := sqlFor(kind)
	if err != nil {
		return err
	}
	return r.execOne(ctx, `UPDATE `+k.table+` SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

// UpdateLastLogin records a successful login time.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, kind shared.PrincipalKind, id int64, at time.Time) error {
	k, err := sqlFor(kind)
	if err != nil {
		return err
	}
	return r.execOne(ctx, `UPDATE `+k.table+` SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
}

func (r *PGRepository) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return db.Translate(err, "principal")
	}
	if tag.RowsAffected() == 0 {
		return shared.Missing("principal")
	}
	return nil
}

// Delete removes the principal with its profile, role assignments and stored token in one transaction.
func (r *PGRepository) Delete(ctx context.Context, kind shared.PrincipalKind, id int64) error {
	k, err := sqlFor(kind)
	if err != nil {
		return err
	}
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if kind == shared.KindWeb {
			if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE web_principal_id = $1`, id); err != nil {
				return db.Translate(err, "profile")
			}
		} else {
			if _, err := tx.Exec(ctx, `DELETE FROM api_tokens WHERE api_principal_id = $1`, id); err != nil {
				return db.Translate(err, "token")
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+k.roles+` WHERE principal_id = $1`, id); err != nil {
			return db.Translate(err, "role assignment")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM `+k.table+` WHERE id = $1`, id)
		if err != nil {
			return db.Translate(err, "principal")
		}
		if tag.RowsAffected() == 0 {
			return shared.Missing("principal")
		}
		return nil
	})
}

// ListAll returns every principal of kind ordered by id.
func (r *PGRepository) ListAll(ctx context.Context, kind shared.PrincipalKind) ([]Principal, error) {
	k, err := sqlFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, k.selectFrom()+` ORDER BY p.id`)
	if err != nil {
		return nil, db.Translate(err, "principals")
	}
	defer rows.Close()
	var out []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows, kind)
		if err != nil {
			return nil, db.Translate(err, "principals")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "principals")
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
