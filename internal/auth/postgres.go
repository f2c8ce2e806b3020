package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"fitbase.app/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL via database/sql with the pgx
// driver.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(ctx context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) Roles(ctx context.Context) RoleStore { return &roleStore{db: s.db} }
func (s *PGStore) RefreshTokens(ctx context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) Audit(ctx context.Context) AuditStore { return &auditStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User, roleIDs []string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, email, name, status, password_hash) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.Name, u.Status, u.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	for _, roleID := range roleIDs {
		_, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
			u.ID, roleID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanUser(ctx,
		`select id, email, name, status, password_hash, created_at, updated_at from users where id=$1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(ctx,
		`select id, email, name, status, password_hash, created_at, updated_at from users where email=$1`, email)
}

func (s *userStore) scanUser(ctx context.Context, query string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Status, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	roles, err := s.roleNames(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *userStore) roleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.name from roles r join user_roles ur on ur.role_id=r.id where ur.user_id=$1 order by r.name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) Ensure(ctx context.Context, roles []Role) error {
	for _, r := range roles {
		if r.ID == "" {
			r.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into roles(id, name, description) values($1,$2,$3) on conflict (name) do nothing`,
			r.ID, r.Name, r.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *roleStore) ByNames(ctx context.Context, names []string) ([]Role, error) {
	var roles []Role
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		row := s.db.QueryRowContext(ctx,
			`select id, name, description, created_at from roles where name=$1`, name)
		var r Role
		if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func (s *roleStore) List(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *refreshTokenStore) FindActive(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, created_at, revoked
		 from refresh_tokens where id=$1 and revoked=false and expires_at > now()`, id)
	var tok RefreshToken
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID)
	return err
}

// Rotate revokes every active token of the user and inserts the replacement
// in one transaction, so two valid lineages never coexist in the store.
func (s *refreshTokenStore) Rotate(ctx context.Context, userID string, tok *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Audit store --------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, user_id, action, entity, entity_id, metadata)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.OccurredAt, entry.UserID, entry.Action, entry.Entity, entry.EntityID, meta,
	)
	return err
}
