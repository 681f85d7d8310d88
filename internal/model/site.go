package model

import "time"

// Site is a registered tenant. The API key authorizes the site's own
// subscribers on the push and poll surfaces; it grants no admin access.
type Site struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}
