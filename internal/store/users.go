package store

import (
	"fmt"
	"sort"
)

// User statuses shown to the admin.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
	StatusActive  = "Active"
)

// User is one registered account. Password holds a bcrypt hash.
type User struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Emotions   []string `json:"emotions"`
	ProfilePic *string  `json:"profile_pic"`
	Status     string   `json:"status"`
	IsLoggedIn bool     `json:"is_logged_in"`
	Bio        string   `json:"bio,omitempty"`
}

// Users maps usernames to accounts.
type Users struct {
	file *JSONFile[map[string]User]
}

// NewUsers creates a user store backed by path.
func NewUsers(path string) *Users {
	return &Users{
		file: NewJSONFile(path, func() map[string]User { return map[string]User{} }),
	}
}

// All returns every account.
func (u *Users) All() (map[string]User, error) {
	return u.file.Load()
}

// Names returns usernames in sorted order.
func (u *Users) Names() ([]string, error) {
	users, err := u.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of accounts.
func (u *Users) Count() (int, error) {
	users, err := u.All()
	return len(users), err
}

// Get returns the account for username or ErrNotFound.
func (u *Users) Get(username string) (User, error) {
	users, err := u.All()
	if err != nil {
		return User{}, err
	}
	user, ok := users[username]
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return user, nil
}

// Create adds a new account, failing with ErrExists if the name is taken.
func (u *Users) Create(username string, user User) error {
	return u.file.Update(func(users *map[string]User) error {
		if _, ok := (*users)[username]; ok {
			return fmt.Errorf("user %q: %w", username, ErrExists)
		}
		if user.Emotions == nil {
			user.Emotions = []string{}
		}
		(*users)[username] = user
		return nil
	})
}

// Update modifies an existing account in place.
func (u *Users) Update(username string, fn func(*User) error) error {
	return u.file.Update(func(users *map[string]User) error {
		user, ok := (*users)[username]
		if !ok {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		if err := fn(&user); err != nil {
			return err
		}
		(*users)[username] = user
		return nil
	})
}

// Upsert modifies username's account, starting from a blank Active one if absent.
func (u *Users) Upsert(username string, fn func(*User) error) error {
	return u.file.Update(func(users *map[string]User) error {
		user, ok := (*users)[username]
		if !ok {
			user = User{Emotions: []string{}, Status: StatusActive}
		}
		if err := fn(&user); err != nil {
			return err
		}
		(*users)[username] = user
		return nil
	})
}

// FindByEmail returns the first username (in sorted order) registered with email.
func (u *Users) FindByEmail(email string) (string, User, error) {
	users, err := u.All()
	if err != nil {
		return "", User{}, err
	}

	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if users[name].Email == email {
			return name, users[name], nil
		}
	}
	return "", User{}, fmt.Errorf("email %q: %w", email, ErrNotFound)
}
