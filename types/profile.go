package types

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile extends a User with display attributes and the authorization role.
// Its ID equals the owning User's ID.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username,omitempty" db:"username"`
	FullName  string    `json:"full_name,omitempty" db:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty" db:"avatar_url"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Role      string    `json:"role" db:"role"`
	Email     string    `json:"email,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeRole maps a stored role to "admin" only when it is exactly the
// admin literal. Any other value, including empty, is "user".
func NormalizeRole(role string) string {
	if role == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// IsAdmin reports whether the profile's role grants back-office access.
func (p Profile) IsAdmin() bool {
	return NormalizeRole(p.Role) == RoleAdmin
}
