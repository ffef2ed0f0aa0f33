package models

type User struct {
	ID       int    `json:"id" example:"1"`                // User ID
	Username string `json:"username" example:"theresa"`    // Unique username
	Role     string `json:"role,omitempty" example:"user"` // Authorization role
}
