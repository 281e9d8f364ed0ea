package user

import (
	"time"
)

// User is the identity record. PasswordHash never leaves the service
// boundary; Public() is the only projection handed to transports.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	ProfileImage *string
	Bio          *string
	Verified     bool
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Public struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	ProfileImage *string    `json:"profile_image"`
	Bio          *string    `json:"bio"`
	Verified     bool       `json:"verified"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) Public() Public {
	return Public{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Bio:          u.Bio,
		Verified:     u.Verified,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
