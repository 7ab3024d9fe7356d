// README: Notification model. Immutable once created except the read flag.
package notification

import (
	"time"

	"leaflift/internal/types"
)

type Type string

const (
	TypeSystem     Type = "SYSTEM"
	TypeRide       Type = "RIDE"
	TypePromo      Type = "PROMO"
	TypeDelayAlert Type = "DELAY_ALERT"
)

type Notification struct {
	ID        types.ID  `json:"id"`
	UserID    types.ID  `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
