package resp

import "time"

type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// TokenResponse is returned by login and refresh. Operator is only filled
// on login.
type TokenResponse struct {
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Operator     *Operator `json:"operator,omitempty"`
}
