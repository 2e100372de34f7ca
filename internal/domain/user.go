package domain

// User is a login identity stored under users/{ID}.
type User struct {
	ID           string
	PasswordHash string
}
