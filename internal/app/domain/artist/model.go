package artist

import "time"

// RoleArtist is the role claim carried by artist-issued tokens.
const RoleArtist = "artist"

// Artist is a performer who spends credits to unlock client contact details.
// Credits never go negative; the ledger service is the only writer.
type Artist struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Credits      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
