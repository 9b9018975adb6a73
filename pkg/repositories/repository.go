package repositories

import (
	"context"

	"github.com/emberforge/vanguard/pkg/messages"
)

type Repository interface {
	Close(ctx context.Context) error
	// GetCharacter returns a character owned by an account.
	GetCharacter(ctx context.Context, accountID string, characterID int32) (*Character, error)
	// CreateCharacter creates a character for an account.
	CreateCharacter(ctx context.Context, accountID string, characterID int32, name string) (*Character, error)
	// LoadCharacterState returns the last saved state of a character.
	LoadCharacterState(ctx context.Context, characterID int32) (*CharacterState, error)
	// SaveCharacterState persists the state of a character.
	SaveCharacterState(ctx context.Context, timestamp int64, characterID int32, snapshot messages.EntitySnapshot) error
}
