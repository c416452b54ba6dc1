package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type UserRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

const userColumns = `id, first_name, last_name, email, password, date_of_birth, avatar_url, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user      models.User
		dob       sql.NullTime
		avatar    sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Password,
		&dob, &avatar, &user.Role, &user.CreatedAt, &updatedAt)
	if err != nil {
		return models.User{}, err
	}
	if dob.Valid {
		user.DateOfBirth = &dob.Time
	}
	if avatar.Valid {
		user.AvatarURL = &avatar.String
	}
	if updatedAt.Valid {
		user.UpdatedAt = &updatedAt.Time
	}
	return user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = &user.CreatedAt

	query := `
        INSERT INTO users (id, first_name, last_name, email, password, date_of_birth, avatar_url, role, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query),
		user.ID, user.FirstName, user.LastName, user.Email, user.Password,
		user.DateOfBirth, user.AvatarURL, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			if _, lookupErr := r.GetUserByID(ctx, user.ID); lookupErr == nil {
				return models.User{}, models.ErrProfileExists
			}
			return models.User{}, models.ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `)`
	return r.queryUsers(ctx, query, stringArgs(ids)...)
}

func (r *UserRepository) SearchUsers(ctx context.Context, excludeID, email string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> ?`
	args := []interface{}{excludeID}
	if email != "" {
		query += ` AND email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY first_name, last_name, id`
	return r.queryUsers(ctx, query, args...)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, user models.User) (models.User, error) {
	now := time.Now().UTC()
	query := `UPDATE users SET first_name = ?, last_name = ?, date_of_birth = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), user.FirstName, user.LastName, user.DateOfBirth, now, user.ID)
	if err != nil {
		return models.User{}, err
	}
	if err := r.expectUpdated(ctx, res, user.ID); err != nil {
		return models.User{}, err
	}
	return r.GetUserByID(ctx, user.ID)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return r.expectUpdated(ctx, res, id)
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id string, avatarURL *string) error {
	query := `UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), avatarURL, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return r.expectUpdated(ctx, res, id)
}

func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, models.ErrUserNotFound)
}

// expectUpdated confirms the user exists when an UPDATE reports no changed
// rows, since MySQL does not count rows whose values stayed the same.
func (r *UserRepository) expectUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = r.GetUserByID(ctx, id)
	return err
}

// expectAffected maps "no rows touched" to notFound.
func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
