// Package models holds the data the CLI receives from the auth server.
package models

import "time"

// User is the public projection of an account as returned by the API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tokens is an access/refresh pair issued on login, register or refresh.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Session is a user together with freshly issued tokens.
type Session struct {
	User User `json:"user"`
	Tokens
}

// Registration is the form submitted to create an account.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
}
