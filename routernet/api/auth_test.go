package api

import (
	"errors"
	"net"
	"testing"
)

func TestValidateToken(t *testing.T) {
	disabled := NewAuthenticator(AuthConfig{})
	if err := disabled.ValidateToken(""); err != nil {
		t.Errorf("Disabled auth should accept anything, got %v", err)
	}

	auth := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"})
	if err := auth.ValidateToken("secret"); err != nil {
		t.Errorf("Expected valid token, got %v", err)
	}
	if err := auth.ValidateToken(""); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("Expected ErrAuthRequired, got %v", err)
	}
	if err := auth.ValidateToken("wrong"); !errors.Is(err, ErrAuthTokenMismatch) {
		t.Errorf("Expected ErrAuthTokenMismatch, got %v", err)
	}
}

func TestNewAuthenticatorGeneratesToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true})
	if len(auth.Token()) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(auth.Token()))
	}
}

func TestHandshake(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", "secret", false},
		{"wrong token", "nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"})
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			done := make(chan error, 1)
			go func() { done <- auth.Handshake(server) }()

			clientErr := ClientHandshake(client, tt.token)
			serverErr := <-done

			if tt.wantErr {
				if !errors.Is(clientErr, ErrAuthFailed) || !errors.Is(serverErr, ErrAuthFailed) {
					t.Errorf("Expected ErrAuthFailed on both sides, got client=%v server=%v", clientErr, serverErr)
				}
				return
			}
			if clientErr != nil || serverErr != nil {
				t.Errorf("Expected success, got client=%v server=%v", clientErr, serverErr)
			}
		})
	}
}
