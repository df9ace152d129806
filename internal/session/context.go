package session

import (
	"errors"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/store"
)

// ErrNoIdentity is returned when no user has logged in on this machine.
var ErrNoIdentity = errors.New("no user identity; run `querydesk login` first")

// Context is the identity a session acts for. It is loaded once at startup
// and shared by reference.
type Context struct {
	UserID   string
	Name     string
	Email    string
	Platform string
}

// LoadContext reads the identity from local state. defaultPlatform is used
// when no platform has been chosen yet.
func LoadContext(st *store.StateStore, defaultPlatform string) (*Context, error) {
	all, err := st.All()
	if err != nil {
		return nil, err
	}
	c := &Context{
		UserID:   all[store.KeyUserID],
		Name:     all[store.KeyName],
		Email:    all[store.KeyEmail],
		Platform: all[store.KeyPlatform],
	}
	if c.Platform == "" {
		c.Platform = defaultPlatform
	}
	if c.UserID == "" {
		return c, ErrNoIdentity
	}
	return c, nil
}

// ContextFor builds a context for a directory user.
func ContextFor(u domain.User, platform string) *Context {
	return &Context{UserID: u.UserID, Name: u.Username, Email: u.Email, Platform: platform}
}

// Save writes the identity to local state.
func (c *Context) Save(st *store.StateStore) error {
	return st.SetAll(map[string]string{
		store.KeyUserID:   c.UserID,
		store.KeyName:     c.Name,
		store.KeyEmail:    c.Email,
		store.KeyPlatform: c.Platform,
	})
}

// FirstName is the greeting name.
func (c *Context) FirstName() string {
	return domain.User{Username: c.Name}.FirstName()
}
