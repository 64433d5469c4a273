package ticketing

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const ticketKeyLength = 12

// GenerateKey returns a short opaque ticket key of lowercase hex digits.
func GenerateKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:ticketKeyLength]
}
