// Package credentials keeps the bearer token issued by the backend in the
// local key-value store.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// TokenKey is the fixed key the token is stored under.
const TokenKey = "auth_token"

// Holder reads and writes the token. It holds no copy of it, so a token
// written by another process (e.g. `fintrack login`) is seen immediately.
type Holder struct {
	kv     storage.KeyValue
	logger *log.Logger
}

func NewHolder(kv storage.KeyValue, logger *log.Logger) *Holder {
	if logger == nil {
		logger = log.Discard()
	}
	return &Holder{kv: kv, logger: logger.WithComponent(log.ComponentCredentials)}
}

// Token returns the stored token, or an AuthError wrapping
// core.ErrMissingToken when none is stored.
func (h *Holder) Token(ctx context.Context) (string, error) {
	raw, ok, err := h.kv.Get(ctx, storage.NamespaceCredentials, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if !ok || token == "" {
		return "", core.NewAuthError(core.ErrMissingToken)
	}
	return token, nil
}

func (h *Holder) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.NewValidationError(core.ErrMissingToken)
	}
	if err := h.kv.Put(ctx, storage.NamespaceCredentials, TokenKey, []byte(token)); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	h.logger.Info("Token stored")
	return nil
}

func (h *Holder) Clear(ctx context.Context) error {
	if err := h.kv.Delete(ctx, storage.NamespaceCredentials, TokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	h.logger.Info("Token cleared")
	return nil
}

// Static is a fixed token source, handy for tests and one-shot scripts.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", core.NewAuthError(core.ErrMissingToken)
	}
	return string(s), nil
}
