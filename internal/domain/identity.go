package domain

import "time"

// Identity is the session subject reported by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// AuthUser holds credentials from auth_users.
type AuthUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity provider error codes. Each maps to its own user-facing message.
const (
	CodeEmailInUse    = "EMAIL_ALREADY_IN_USE"
	CodeInvalidEmail  = "INVALID_EMAIL"
	CodeWeakPassword  = "WEAK_PASSWORD"
	CodeWrongPassword = "WRONG_PASSWORD"
	CodeUserNotFound  = "USER_NOT_FOUND"
	CodeUserDisabled  = "USER_DISABLED"
)

func ErrEmailInUse() *AppError {
	return &AppError{Code: CodeEmailInUse, Message: "This email is already registered. Please sign in or use a different email.", Status: 409}
}

func ErrInvalidEmail() *AppError {
	return &AppError{Code: CodeInvalidEmail, Message: "Invalid email format.", Status: 400}
}

func ErrWeakPassword() *AppError {
	return &AppError{Code: CodeWeakPassword, Message: "Password is too weak. Use at least 6 characters.", Status: 400}
}

func ErrWrongPassword() *AppError {
	return &AppError{Code: CodeWrongPassword, Message: "Incorrect password. Please try again or reset your password.", Status: 401}
}

func ErrUserNotFound() *AppError {
	return &AppError{Code: CodeUserNotFound, Message: "No account found with this email. Please sign up.", Status: 404}
}

func ErrUserDisabled() *AppError {
	return &AppError{Code: CodeUserDisabled, Message: "This account has been disabled.", Status: 403}
}
