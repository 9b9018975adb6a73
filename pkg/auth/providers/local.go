package providers

import (
	"context"
	"fmt"
	"strings"
)

var _ AuthProvider = &LocalAuthProvider{}

// LocalAuthProvider accepts any token of the form "local:<uid>".
// For development and testing without an identity backend.
type LocalAuthProvider struct{}

func NewLocalAuthProvider() *LocalAuthProvider {
	return &LocalAuthProvider{}
}

func (p *LocalAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	uid, ok := strings.CutPrefix(idToken, "local:")
	if !ok || uid == "" {
		return nil, fmt.Errorf("invalid local token")
	}

	return &TokenClaims{
		UID: uid,
	}, nil
}
