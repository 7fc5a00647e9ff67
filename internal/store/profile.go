package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

// ProfileRepository handles persistence for profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `p.id, COALESCE(p.username, ''), COALESCE(p.full_name, ''), COALESCE(p.avatar_url, ''),
		COALESCE(p.phone, ''), p.role, u.email, p.created_at, p.updated_at`

func scanProfile(row interface{ Scan(...any) error }) (types.Profile, error) {
	var profile types.Profile
	err := row.Scan(
		&profile.ID,
		&profile.Username,
		&profile.FullName,
		&profile.AvatarURL,
		&profile.Phone,
		&profile.Role,
		&profile.Email,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	return profile, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (types.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles p
		JOIN users u ON u.id = p.id
		WHERE p.id = $1`
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

// GetRole returns the raw stored role of the profile.
func (r *ProfileRepository) GetRole(ctx context.Context, id string) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

func (r *ProfileRepository) List(ctx context.Context) ([]types.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles p
		JOIN users u ON u.id = p.id
		ORDER BY p.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []types.Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *ProfileRepository) Update(ctx context.Context, profile types.Profile) (types.Profile, error) {
	profile.UpdatedAt = time.Now()

	const query = `
		UPDATE profiles
		SET username = $1,
			full_name = $2,
			avatar_url = $3,
			phone = $4,
			role = $5,
			updated_at = $6
		WHERE id = $7`
	err := execOne(ctx, r.db, query,
		nullString(profile.Username),
		nullString(profile.FullName),
		nullString(profile.AvatarURL),
		nullString(profile.Phone),
		profile.Role,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

func (r *ProfileRepository) SetRole(ctx context.Context, id, role string) error {
	const query = `UPDATE profiles SET role = $1, updated_at = $2 WHERE id = $3`
	return execOne(ctx, r.db, query, role, time.Now(), id)
}
