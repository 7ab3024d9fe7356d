// README: User read model. Signup and the verification workflow are owned by
// the account subsystem; the core only reads these records.
package user

import (
	"strings"
	"time"

	"leaflift/internal/types"
)

type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

type User struct {
	ID        types.ID
	Role      Role
	FirstName string
	LastName  string
	Phone     string
	Gender    string
	Verified  bool
	Rating    float64
	CreatedAt time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
