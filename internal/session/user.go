package session

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleManager   Role = "manager"
	RoleAuditor   Role = "auditor"
)

// Valid reports whether r is one of the roles the service accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RoleManager, RoleAuditor:
		return true
	}
	return false
}

// User is the profile returned by /auth/me/ and /auth/staff/.
type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	Timezone        string `json:"timezone,omitempty"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// UnmarshalJSON also accepts the camel-cased verification flag some
// deployments emit.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		CamelVerified *bool `json:"isEmailVerified"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if aux.CamelVerified != nil {
		u.IsEmailVerified = u.IsEmailVerified || *aux.CamelVerified
	}
	return nil
}

// Staff is the directory of assignable users.
type Staff []User

// ResolveUserID maps a display name to its numeric identity.
func (s Staff) ResolveUserID(username string) (int64, bool) {
	for _, u := range s {
		if strings.EqualFold(u.Username, username) {
			return u.ID, true
		}
	}
	return 0, false
}

// Registration is the payload of the register endpoint.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
