package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) GetCharacter(ctx context.Context, accountID string, characterID int32) (*Character, error) {
	q := `
	SELECT character_id, account_id, name FROM characters
	WHERE character_id = $1 AND account_id = $2;
	`
	character := &Character{}
	if err := r.pool.QueryRow(ctx, q, characterID, accountID).Scan(&character.ID, &character.AccountID, &character.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan character: %v", err)
	}

	return character, nil
}

func (r *PostgresRepository) CreateCharacter(ctx context.Context, accountID string, characterID int32, name string) (*Character, error) {
	q := `
	INSERT INTO characters (character_id, account_id, name)
	VALUES ($1, $2, $3);
	`
	if _, err := r.pool.Exec(ctx, q, characterID, accountID, name); err != nil {
		return nil, fmt.Errorf("failed to insert character: %v", err)
	}

	return &Character{
		ID:        characterID,
		AccountID: accountID,
		Name:      name,
	}, nil
}

func (r *PostgresRepository) LoadCharacterState(ctx context.Context, characterID int32) (*CharacterState, error) {
	q := `
	SELECT x, y, z, hitpoints, updated_at FROM character_states WHERE character_id = $1;
	`
	var x, y, z float64
	var hitpoints int16
	var updatedAt int64
	if err := r.pool.QueryRow(ctx, q, characterID).Scan(&x, &y, &z, &hitpoints, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (r *PostgresRepository) SaveCharacterState(ctx context.Context, timestamp int64, characterID int32, snapshot messages.EntitySnapshot) error {
	q := `
	INSERT INTO character_states (character_id, x, y, z, hitpoints, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (character_id) DO UPDATE SET x = $2, y = $3, z = $4, hitpoints = $5, updated_at = $6;
	`
	_, err := r.pool.Exec(ctx, q, characterID, snapshot.Position.X, snapshot.Position.Y, snapshot.Position.Z, snapshot.Hitpoints, timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert character state: %v", err)
	}

	return nil
}
