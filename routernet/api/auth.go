package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token" json:"-"`
}

// Authenticator handles connection authentication.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates a new Authenticator. Enabling auth without a
// token generates one; read it back with Token.
func NewAuthenticator(config AuthConfig) *Authenticator {
	if config.Enabled && config.Token == "" {
		config.Token = GenerateToken()
	}
	return &Authenticator{
		config: config,
	}
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// Token returns the configured token.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken compares the provided token in constant time.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}
	if providedToken == "" {
		return ErrAuthRequired
	}
	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}
	return nil
}

// GenerateToken generates a random 256-bit hex token.
func GenerateToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// AuthMessage is the first frame a client sends when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"` // Must be "auth"
	Token string `json:"token"`
}

// AuthResponse is sent back to the client after an auth attempt.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handshake runs the server side of the auth exchange on conn. It is a
// no-op when auth is disabled.
func (a *Authenticator) Handshake(conn io.ReadWriter) error {
	if !a.IsEnabled() {
		return nil
	}

	data, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("failed to read auth message: %w", err)
	}

	var msg AuthMessage
	verr := json.Unmarshal(data, &msg)
	if verr == nil && msg.Type != "auth" {
		verr = ErrAuthRequired
	}
	if verr == nil {
		verr = a.ValidateToken(msg.Token)
	}

	resp := AuthResponse{Success: verr == nil}
	if verr != nil {
		resp.Error = ErrAuthFailed.Error()
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := WriteMessage(conn, payload); err != nil {
		return err
	}

	if verr != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, verr)
	}
	return nil
}

// ClientHandshake runs the client side of the auth exchange.
func ClientHandshake(conn io.ReadWriter, token string) error {
	payload, err := json.Marshal(AuthMessage{Type: "auth", Token: token})
	if err != nil {
		return err
	}
	if err := WriteMessage(conn, payload); err != nil {
		return err
	}

	data, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	var resp AuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("invalid auth response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}
	return nil
}
