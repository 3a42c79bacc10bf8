package service

import "strings"

// Caller identifies the principal an operation runs for. It is passed
// explicitly to every operation.
type Caller struct {
	PrincipalID string
}

func (c Caller) requireAuthenticated() error {
	if strings.TrimSpace(c.PrincipalID) == "" {
		return ErrUnauthorized
	}
	return nil
}
