package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/petrachuk/avp-authcore/internal/auth/domain"
	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
)

const uniqueViolationCode = "23505"

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const identityColumns = `i.id, i.username, i.password_hash, i.status, i.created_at, i.updated_at,
		COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')`

const identityJoin = `
	FROM identities i
	LEFT JOIN identity_roles ir ON ir.identity_id = i.id
	LEFT JOIN roles r ON r.name = ir.role_name`

func (repo *Repository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + identityJoin + `
		WHERE lower(i.username) = lower($1)
		GROUP BY i.id;`

	return repo.scanIdentity(repo.db.QueryRow(ctx, query, username))
}

func (repo *Repository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + identityJoin + `
		WHERE i.id = $1
		GROUP BY i.id;`

	return repo.scanIdentity(repo.db.QueryRow(ctx, query, id))
}

func (repo *Repository) scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(&identity.ID, &identity.Username, &identity.PasswordHash, &identity.Status,
		&identity.CreatedAt, &identity.UpdatedAt, &identity.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("find identity", err)
	}
	return &identity, nil
}

// Create persists the identity and its role links in one transaction. A
// username uniqueness violation surfaces as ErrDuplicateIdentity so that a
// concurrent duplicate registration loses cleanly at write time.
func (repo *Repository) Create(ctx context.Context, identity *domain.Identity) error {
	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return storageErr("begin create identity", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO identities (id, username, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, identity.ID, identity.Username, identity.PasswordHash, identity.Status,
		identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return autherrors.ErrDuplicateIdentity
		}
		return storageErr("insert identity", err)
	}

	for _, role := range identity.Roles {
		_, err = tx.Exec(ctx, `
			INSERT INTO identity_roles (identity_id, role_name)
			VALUES ($1, $2)
		`, identity.ID, role)
		if err != nil {
			return storageErr("insert identity role", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return autherrors.ErrDuplicateIdentity
		}
		return storageErr("commit create identity", err)
	}
	return nil
}

// UpdateRoles replaces the identity's role set atomically.
func (repo *Repository) UpdateRoles(ctx context.Context, id string, roles []string) error {
	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return storageErr("begin update roles", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE identities SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return storageErr("touch identity", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrIdentityNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM identity_roles WHERE identity_id = $1`, id); err != nil {
		return storageErr("clear identity roles", err)
	}

	for _, role := range roles {
		if _, err := tx.Exec(ctx, `
			INSERT INTO identity_roles (identity_id, role_name)
			VALUES ($1, $2)
		`, id, role); err != nil {
			return storageErr("insert identity role", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit update roles", err)
	}
	return nil
}

func (repo *Repository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	tag, err := repo.db.Exec(ctx, `
		UPDATE identities SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return storageErr("update identity status", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrIdentityNotFound
	}
	return nil
}

func (repo *Repository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := repo.db.QueryRow(ctx, `
		SELECT name, COALESCE(description, '') FROM roles WHERE lower(name) = lower($1) LIMIT 1
	`, name).Scan(&role.Name, &role.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("find role", err)
	}
	return &role, nil
}

func (repo *Repository) RecordLoginAttempt(ctx context.Context, username string, success bool) error {
	_, err := repo.db.Exec(ctx, `
		INSERT INTO login_attempts (id, username, attempt_time, successful)
		VALUES (gen_random_uuid(), $1, now(), $2)
	`, username, success)
	if err != nil {
		return storageErr("record login attempt", err)
	}
	return nil
}

func (repo *Repository) CountRecentFailures(ctx context.Context, username string, since time.Time) (int, error) {
	var count int
	err := repo.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE lower(username) = lower($1) AND NOT successful AND attempt_time >= $2
	`, username, since).Scan(&count)
	if err != nil {
		return 0, storageErr("count login failures", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, autherrors.ErrStorageUnavailable, err)
}
