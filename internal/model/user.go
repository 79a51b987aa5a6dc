package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // Do not expose password hash in JSON responses
	Role         string    `json:"role"`
	Balance      int64     `json:"balance"` // In cents
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserRequest is the registration payload
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin"`
}

// UpdateUserRequest allows partial profile updates
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	Email *string `json:"email,omitempty" binding:"omitempty,email"`
}

// UserListPage is the admin listing response
type UserListPage struct {
	Users []User `json:"users"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// UserSummary is the reduced shape returned by search
type UserSummary struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
