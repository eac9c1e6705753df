package models

// Credentials is the login request body. Never persisted or logged.
type Credentials struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// AuthenticationToken is returned by the login and refresh endpoints
type AuthenticationToken struct {
	Token string `json:"token"`
}

// UserIdentity is the canonical identity of an authenticated user
type UserIdentity struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// HasAnyAuthority reports whether the identity holds at least one of the given authorities
func (i *UserIdentity) HasAnyAuthority(authorities ...string) bool {
	if i == nil {
		return false
	}
	for _, want := range authorities {
		for _, have := range i.Authorities {
			if have == want {
				return true
			}
		}
	}
	return false
}
