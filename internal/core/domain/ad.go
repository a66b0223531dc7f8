package domain

import (
	"fmt"
	"time"
)

type Ad struct {
	ID               int64
	Text             string
	Photo            string
	ChannelMessageID int
	CreatedAt        time.Time
}

type AdTarget string

const (
	AdTargetChannel AdTarget = "channel"
	AdTargetUsers   AdTarget = "users"
)

func ParseAdTarget(s string) (AdTarget, error) {
	switch t := AdTarget(s); t {
	case AdTargetChannel, AdTargetUsers:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown ad target %q", ErrValidation, s)
}
