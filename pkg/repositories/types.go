package repositories

import "github.com/emberforge/vanguard/pkg/kinematic"

type Character struct {
	ID        int32
	AccountID string
	Name      string
}

type CharacterState struct {
	CharacterID int32
	Position    kinematic.Vector
	Hitpoints   int16
	UpdatedAt   int64
}

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
