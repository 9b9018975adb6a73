package repositories

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

type SQLiteRepository struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS characters (
	character_id INTEGER PRIMARY KEY,
	account_id TEXT NOT NULL,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS character_states (
	character_id INTEGER PRIMARY KEY REFERENCES characters(character_id),
	x REAL NOT NULL,
	y REAL NOT NULL,
	z REAL NOT NULL,
	hitpoints INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetCharacter(ctx context.Context, accountID string, characterID int32) (*Character, error) {
	q := `
	SELECT character_id, account_id, name FROM characters
	WHERE character_id = ? AND account_id = ?;
	`
	character := &Character{}
	if err := r.db.QueryRowContext(ctx, q, characterID, accountID).Scan(&character.ID, &character.AccountID, &character.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan character: %v", err)
	}

	return character, nil
}

func (r *SQLiteRepository) CreateCharacter(ctx context.Context, accountID string, characterID int32, name string) (*Character, error) {
	q := `
	INSERT INTO characters (character_id, account_id, name)
	VALUES (?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, characterID, accountID, name); err != nil {
		return nil, fmt.Errorf("failed to insert character: %v", err)
	}

	return &Character{
		ID:        characterID,
		AccountID: accountID,
		Name:      name,
	}, nil
}

func (r *SQLiteRepository) LoadCharacterState(ctx context.Context, characterID int32) (*CharacterState, error) {
	q := `
	SELECT x, y, z, hitpoints, updated_at FROM character_states WHERE character_id = ?;
	`
	var x, y, z float64
	var hitpoints int16
	var updatedAt int64
	if err := r.db.QueryRowContext(ctx, q, characterID).Scan(&x, &y, &z, &hitpoints, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan character state: %v", err)
	}

	return &CharacterState{
		CharacterID: characterID,
		Position:    kinematic.Vector{X: x, Y: y, Z: z},
		Hitpoints:   hitpoints,
		UpdatedAt:   updatedAt,
	}, nil
}

func (r *SQLiteRepository) SaveCharacterState(ctx context.Context, timestamp int64, characterID int32, snapshot messages.EntitySnapshot) error {
	q := `
	INSERT OR REPLACE INTO character_states (character_id, x, y, z, hitpoints, updated_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q, characterID, snapshot.Position.X, snapshot.Position.Y, snapshot.Position.Z, snapshot.Hitpoints, timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert character state: %v", err)
	}

	return nil
}
