package unlock

import (
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/client"
)

// Unlock records that an artist paid one credit for access to a request.
// The (ArtistID, RequestID) pair is unique; unlocks are append-only.
type Unlock struct {
	ArtistID  string
	RequestID string
	CreatedAt time.Time
}

// Receipt is returned to the artist after a successful unlock.
type Receipt struct {
	ArtistID  string         `json:"artist_id"`
	RequestID string         `json:"request_id"`
	Balance   int64          `json:"balance"`
	Contact   client.Contact `json:"contact"`
}
