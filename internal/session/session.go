// Package session models the local actor's identity. Sessions are issued by
// the authentication collaborator; this subsystem only reads them.
package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptyToken is returned when a session is built from an empty credential.
var ErrEmptyToken = errors.New("session: empty token")

// Session identifies the local actor for the lifetime of a login.
type Session struct {
	UserID string
	Role   string
	Token  string

	// Offline marks a session that must never open a real-time connection.
	// The connection manager reports a permanent, non-erroring disconnected
	// state for such sessions.
	Offline bool
}

// Claims mirrors the collaborator-issued access token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// New builds a session from already-known identity fields.
func New(userID, role, token string) *Session {
	return &Session{UserID: userID, Role: role, Token: token}
}

// FromToken extracts identity from the access token without verifying the
// signature. Verification belongs to the issuing collaborator; the client
// only needs the subject and role to label its own traffic.
func FromToken(token string) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, errors.New("session: token carries no user id")
	}

	return &Session{UserID: userID, Role: claims.Role, Token: token}, nil
}
