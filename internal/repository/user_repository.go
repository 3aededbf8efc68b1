package repository

import (
	"context"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

const userColumns = `id, username, email, password_hash, created_at, avatar_url, confirmed, role`

type UserRepository struct {
	pool Pool
}

func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a registration. PasswordHash must already be hashed; the role
// defaults to user and the email starts unconfirmed.
func (r *UserRepository) Create(ctx context.Context, user models.NewUser) (models.User, error) {
	const op = "users.create"
	const query = `
		INSERT INTO users (
			username, email, password_hash, avatar_url
		) VALUES (
			$1, $2, $3, $4
		)
		RETURNING ` + userColumns

	created, err := scanUser(r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.AvatarURL,
	))
	if err != nil {
		return models.User{}, translate(op, err)
	}
	return created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "users.get_by_id", query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getOne(ctx, "users.get_by_username", query, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, "users.get_by_email", query, email)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return models.User{}, translate(op, err)
	}
	return user, nil
}

// ConfirmEmail marks the address as confirmed. An unknown email is a no-op.
func (r *UserRepository) ConfirmEmail(ctx context.Context, email string) error {
	const query = `UPDATE users SET confirmed = TRUE WHERE email = $1`
	if _, err := r.pool.Exec(ctx, query, email); err != nil {
		return translate("users.confirm_email", err)
	}
	return nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, email, url string) (models.User, error) {
	const op = "users.update_avatar"
	const query = `
		UPDATE users SET avatar_url = $2
		WHERE email = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, email, url))
	if err != nil {
		return models.User{}, translate(op, err)
	}
	return user, nil
}

// ResetPassword clears the stored hash. The account cannot log in until a new
// password is set.
func (r *UserRepository) ResetPassword(ctx context.Context, email string) (models.User, error) {
	const query = `
		UPDATE users SET password_hash = NULL
		WHERE email = $1
		RETURNING ` + userColumns
	return r.getOne(ctx, "users.reset_password", query, email)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) (models.User, error) {
	const op = "users.update_password"
	const query = `
		UPDATE users SET password_hash = $2
		WHERE email = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, email, passwordHash))
	if err != nil {
		return models.User{}, translate(op, err)
	}
	return user, nil
}

func (r *UserRepository) SetRole(ctx context.Context, id int64, role models.UserRole) (models.User, error) {
	const op = "users.set_role"
	if !role.Valid() {
		return models.User{}, errs.E(errs.KindValidation, op, "unknown role", nil)
	}

	const query = `
		UPDATE users SET role = $2
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, string(role)))
	if err != nil {
		return models.User{}, translate(op, err)
	}
	return user, nil
}

// ListConfirmed pages through confirmed users by id (keyset pagination).
func (r *UserRepository) ListConfirmed(ctx context.Context, afterID int64, limit int) ([]models.User, error) {
	const op = "users.list_confirmed"
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE confirmed AND id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	users := make([]models.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.AvatarURL,
		&u.Confirmed,
		&role,
	)
	u.Role = models.UserRole(role)
	return u, err
}
