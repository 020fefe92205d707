// Package domain contains entity without logic, just meta-data
package domain

import (
	"fmt"
	"strings"
)

const MaxUsernameLen = 64

// Username is the display name a client claims at registration.
type Username string

// NewUsername trims the raw name and checks it can identify a session.
func NewUsername(raw string) (Username, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", ErrInvalidIdentity
	}
	if len(name) > MaxUsernameLen {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxUsernameLen)
	}
	return Username(name), nil
}

func (u Username) String() string { return string(u) }
