package identity

import "time"

// Account is a registered ledger participant. Name is the key every balance,
// share and profile record is stored under.
type Account struct {
	Name         string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Name string
	PIN  string
}
