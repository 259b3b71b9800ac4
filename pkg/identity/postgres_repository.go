package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

const identityColumns = `id, email, password_hash, role, status, organization, department, job_title,
	first_name, last_name, clearance, failed_login_attempts, locked_until, two_factor_secret,
	two_factor_enabled, email_verified, last_login_at, last_active_at, created_at, updated_at`

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		i               Identity
		passwordHash    *string
		twoFactorSecret *string
	)
	err := row.Scan(
		&i.ID, &i.Email, &passwordHash, &i.Role, &i.Status, &i.Organization, &i.Department, &i.JobTitle,
		&i.FirstName, &i.LastName, &i.Clearance, &i.FailedLoginAttempts, &i.LockedUntil, &twoFactorSecret,
		&i.TwoFactorEnabled, &i.EmailVerified, &i.LastLoginAt, &i.LastActiveAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, apperrors.Classify(err)
	}
	if passwordHash != nil {
		i.PasswordHash = *passwordHash
	}
	if twoFactorSecret != nil {
		i.TwoFactorSecret = *twoFactorSecret
	}
	return i, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, NormalizeEmail(email))
	return scanIdentity(row)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r *PostgresRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO identities (id, email, password_hash, role, status, organization, department, job_title,
			first_name, last_name, clearance, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+identityColumns,
		identity.ID, NormalizeEmail(identity.Email), nullable(identity.PasswordHash), identity.Role, identity.Status,
		identity.Organization, identity.Department, identity.JobTitle, identity.FirstName, identity.LastName,
		identity.Clearance, identity.EmailVerified,
	)
	created, err := scanIdentity(row)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeDuplicateResource) {
			return Identity{}, apperrors.DuplicateResource("identity with this email")
		}
		return Identity{}, err
	}
	return created, nil
}

// UpsertFederated relies on INSERT ... ON CONFLICT so two concurrent
// assertions for a new email converge on one row. xmax is zero only for a
// freshly inserted tuple.
func (r *PostgresRepository) UpsertFederated(ctx context.Context, p FederatedProfile, now time.Time) (Identity, bool, error) {
	var created bool
	var i Identity
	var passwordHash, twoFactorSecret *string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (id, email, role, status, clearance, email_verified,
			first_name, last_name, organization, department, job_title,
			last_login_at, last_active_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', 'public', TRUE, $4, $5, $6, $7, $8, $9, $9, $9, $9)
		ON CONFLICT (email) DO UPDATE SET
			first_name     = COALESCE(NULLIF(EXCLUDED.first_name, ''), identities.first_name),
			last_name      = COALESCE(NULLIF(EXCLUDED.last_name, ''), identities.last_name),
			organization   = COALESCE(NULLIF(EXCLUDED.organization, ''), identities.organization),
			department     = COALESCE(NULLIF(EXCLUDED.department, ''), identities.department),
			job_title      = COALESCE(NULLIF(EXCLUDED.job_title, ''), identities.job_title),
			last_login_at  = EXCLUDED.last_login_at,
			last_active_at = EXCLUDED.last_active_at,
			updated_at     = EXCLUDED.updated_at
		RETURNING `+identityColumns+`, (xmax = 0)`,
		uuid.New(), NormalizeEmail(p.Email), DefaultRole,
		p.FirstName, p.LastName, p.Organization, p.Department, p.JobTitle, now,
	).Scan(
		&i.ID, &i.Email, &passwordHash, &i.Role, &i.Status, &i.Organization, &i.Department, &i.JobTitle,
		&i.FirstName, &i.LastName, &i.Clearance, &i.FailedLoginAttempts, &i.LockedUntil, &twoFactorSecret,
		&i.TwoFactorEnabled, &i.EmailVerified, &i.LastLoginAt, &i.LastActiveAt, &i.CreatedAt, &i.UpdatedAt,
		&created,
	)
	if err != nil {
		return Identity{}, false, apperrors.Classify(fmt.Errorf("upsert federated identity: %w", err))
	}
	if passwordHash != nil {
		i.PasswordHash = *passwordHash
	}
	if twoFactorSecret != nil {
		i.TwoFactorSecret = *twoFactorSecret
	}
	return i, created, nil
}

// RegisterFailedLogin performs increment, compare and lock in one UPDATE; the
// row lock taken by the update serialises concurrent failures.
func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (FailedLoginResult, error) {
	var res FailedLoginResult
	err := r.pool.QueryRow(ctx, `
		WITH cur AS (
			SELECT id,
				CASE WHEN locked_until IS NOT NULL AND locked_until <= $3 THEN 1
				     ELSE failed_login_attempts + 1 END AS attempts,
				CASE WHEN locked_until IS NOT NULL AND locked_until > $3 THEN locked_until END AS active_lock
			FROM identities WHERE id = $1 FOR UPDATE
		)
		UPDATE identities i SET
			failed_login_attempts = cur.attempts,
			locked_until = CASE
				WHEN cur.active_lock IS NOT NULL THEN cur.active_lock
				WHEN cur.attempts >= $2 THEN $4::timestamptz
				ELSE NULL END,
			updated_at = $3
		FROM cur WHERE i.id = cur.id
		RETURNING i.failed_login_attempts, i.locked_until`,
		id, threshold, now, now.Add(lockFor),
	).Scan(&res.Attempts, &res.LockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FailedLoginResult{}, ErrNotFound
		}
		return FailedLoginResult{}, apperrors.Classify(err)
	}
	return res, nil
}

func (r *PostgresRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.exec(ctx, `
		UPDATE identities SET failed_login_attempts = 0, locked_until = NULL,
			last_login_at = $2, last_active_at = $2, updated_at = $2
		WHERE id = $1`, id, now)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error {
	return r.exec(ctx, `
		UPDATE identities SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = $3
		WHERE id = $1`, id, passwordHash, now)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) (Identity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE identities SET email_verified = TRUE,
			status = CASE WHEN status = 'pending_verification' THEN 'active' ELSE status END,
			updated_at = $2
		WHERE id = $1
		RETURNING `+identityColumns, id, now)
	return scanIdentity(row)
}

func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id uuid.UUID, secret string, enabled bool, now time.Time) error {
	return r.exec(ctx, `
		UPDATE identities SET two_factor_secret = $2, two_factor_enabled = $3, updated_at = $4
		WHERE id = $1`, id, nullable(secret), enabled, now)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return apperrors.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
