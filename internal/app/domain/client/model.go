package client

import "time"

// RoleClient is the role claim carried by client-issued tokens.
const RoleClient = "client"

// Client posts performance requests. Its contact details are what an unlock
// reveals to the paying artist.
type Client struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contact is the subset of client data released by a successful unlock.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// ContactOf extracts the releasable contact details.
func ContactOf(c Client) Contact {
	return Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
}
