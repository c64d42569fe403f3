package auth

import (
	"time"

	"github.com/odyssey-erp/productmanager/internal/rbac"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	LoginName string `json:"loginName" validate:"required,max=50"`
	Password  string `json:"password" validate:"required,max=128"`
}

// SessionInfo tells clients how the inactivity window behaves.
type SessionInfo struct {
	ExpiresAt         time.Time `json:"expiresAt"`
	InactivitySeconds int       `json:"inactivitySeconds"`
	WarningSeconds    int       `json:"warningSeconds"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token       string         `json:"token"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Identity    rbac.Principal `json:"identity"`
	Permissions []string       `json:"permissions"`
	Session     SessionInfo    `json:"session"`

	SessionID string `json:"-"`
}
