package domain

type ContextKey string

const UserContextKey ContextKey = "user"

// User is the identity resolved from the session token. The settlement core
// never loads users itself; it only attributes orders to the token subject.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}
