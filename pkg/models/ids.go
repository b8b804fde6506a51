package models

import "github.com/google/uuid"

// IDGenerator produces unique record ids.
type IDGenerator func() string

// NewUUID is the default IDGenerator.
func NewUUID() string {
	return uuid.NewString()
}
