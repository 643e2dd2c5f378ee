package xid

import (
	"strings"

	"github.com/google/uuid"
)

func New() string {
	return uuid.NewString()
}

// Valid reports whether id is a well-formed entity identifier.
func Valid(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
