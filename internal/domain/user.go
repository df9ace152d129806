package domain

import "strings"

// User is a member of the analytics workspace.
type User struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// FirstName is the first word of the username, or "Unknown".
func (u User) FirstName() string {
	if f := strings.Fields(u.Username); len(f) > 0 {
		return f[0]
	}
	return "Unknown"
}

// FindUser returns the user with the given id.
func FindUser(users []User, id string) (User, bool) {
	for _, u := range users {
		if u.UserID == id {
			return u, true
		}
	}
	return User{}, false
}
