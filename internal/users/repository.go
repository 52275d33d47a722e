package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) (int64, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	UpdatePIN(ctx context.Context, id int64, hash []byte) error
	// BindPasskey stores address unless a different one is already bound,
	// in which case it returns ErrSignerConflict.
	BindPasskey(ctx context.Context, id int64, address string) error
	SetWallet(ctx context.Context, id int64, address string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUser = `SELECT id, COALESCE(email, ''), COALESCE(phone, ''), first_name, last_name,
        pin_hash, COALESCE(passkey_address, ''), COALESCE(wallet_address, ''), created_at, updated_at
        FROM users`

// Create inserts a new user and returns its id.
func (r *PostgresRepository) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO users (email, phone, first_name, last_name, created_at, updated_at)
        VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, $5) RETURNING id`,
		user.Email, user.Phone, user.FirstName, user.LastName, user.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrExists
		}
		return 0, err
	}
	return id, nil
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (User, error) {
	return r.findOne(ctx, selectUser+` WHERE id = $1`, id)
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, selectUser+` WHERE email = $1`, email)
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, selectUser+` WHERE phone = $1`, phone)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (User, error) {
	var (
		user                 User
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Email, &user.Phone, &user.FirstName, &user.LastName,
		&user.PINHash, &user.PasskeyAddress, &user.WalletAddress, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return user, nil
}

// UpdatePIN stores a new PIN hash.
func (r *PostgresRepository) UpdatePIN(ctx context.Context, id int64, hash []byte) error {
	return r.update(ctx, `UPDATE users SET pin_hash = $1, updated_at = now() WHERE id = $2`, hash, id)
}

// BindPasskey stores the passkey address if none, or the same one, is bound.
func (r *PostgresRepository) BindPasskey(ctx context.Context, id int64, address string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET passkey_address = $1, updated_at = now()
        WHERE id = $2 AND (passkey_address IS NULL OR passkey_address = $1)`, address, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrSignerConflict
}

// SetWallet records the address of the user's provisioned wallet.
func (r *PostgresRepository) SetWallet(ctx context.Context, id int64, address string) error {
	return r.update(ctx, `UPDATE users SET wallet_address = $1, updated_at = now() WHERE id = $2`, address, id)
}

func (r *PostgresRepository) update(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
