package util

import "github.com/google/uuid"

// NewID returns a UUIDv7 string used for every persisted record. IDs minted
// by one process sort in creation order, including within a millisecond.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
