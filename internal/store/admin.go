package store

// AdminProfile is the single admin's editable profile. Password, when set,
// is a bcrypt hash that overrides the configured admin password.
type AdminProfile struct {
	Bio      string `json:"bio"`
	Password string `json:"password,omitempty"`
}

// Admin stores the AdminProfile document.
type Admin struct {
	file *JSONFile[AdminProfile]
}

// NewAdmin creates an admin profile store backed by path.
func NewAdmin(path string) *Admin {
	return &Admin{
		file: NewJSONFile(path, func() AdminProfile { return AdminProfile{} }),
	}
}

// Get returns the profile; a missing file yields the zero profile.
func (a *Admin) Get() (AdminProfile, error) {
	return a.file.Load()
}

// Update modifies the profile.
func (a *Admin) Update(fn func(*AdminProfile) error) error {
	return a.file.Update(fn)
}
