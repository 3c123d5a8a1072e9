//go:generate go run go.uber.org/mock/mockgen -source=gate.go -destination=../mocks/mock_verifier.go -package=mocks

// Package auth resolves connection credentials to chat principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omochice/realtime-chat/internal/chat"
)

var (
	ErrAuthentication    = errors.New("authentication failed")
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrAuthentication)
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrAuthentication)
)

// Verifier checks a raw token and returns its claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Gate admits connections whose credential the verifier accepts.
type Gate struct {
	verifier Verifier
	log      *slog.Logger
}

func NewGate(verifier Verifier, log *slog.Logger) *Gate {
	return &Gate{verifier: verifier, log: log}
}

// Authenticate implements chat.Authenticator.
func (g *Gate) Authenticate(_ context.Context, credential string) (chat.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return chat.Principal{}, ErrMissingCredential
	}

	claims, err := g.verifier.Verify(credential)
	if err != nil {
		g.log.Debug("Token rejected", "error", err)
		return chat.Principal{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if claims.UserID == "" {
		return chat.Principal{}, fmt.Errorf("%w: token has no user id", ErrInvalidCredential)
	}

	return chat.Principal{ID: chat.Identity(claims.UserID), Name: claims.Name}, nil
}
