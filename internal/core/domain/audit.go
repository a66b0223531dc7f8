package domain

import (
	"fmt"
	"time"
)

const (
	DirectionToBot    = "->bot"
	DirectionToSeller = "->seller"
	DirectionToBuyer  = "->buyer"

	AuditRoleUser = "user"
)

// AuditEntry is one line of a user's daily message log.
type AuditEntry struct {
	UserID    int64
	At        time.Time
	Role      string
	Direction string
	Text      string
	Photo     string
}

// Day is the stream key the entry belongs to.
func (e AuditEntry) Day() string {
	return e.At.Format(time.DateOnly)
}

func (e AuditEntry) String() string {
	body := "TEXT: " + e.Text
	if e.Photo != "" {
		body = "PHOTO: " + e.Photo
	}
	return fmt.Sprintf("[%s] (%s) %s %s", e.At.Format(time.TimeOnly), e.Role, e.Direction, body)
}
