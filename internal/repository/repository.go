// Package repository maps the three logical session records onto the TTL
// store: the waiting queue, one key per active game, and confirmation flags.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"connect4r/internal/models"
	"connect4r/internal/store"
)

const (
	keyPrefix   = "game:"
	waitingKey  = keyPrefix + "waiting_players"
	gamePrefix  = keyPrefix + "active_games:"
	confirmPref = keyPrefix + "match_confirm:"

	WaitingTTL = 30 * time.Second
	GameTTL    = 300 * time.Second
	ConfirmTTL = 10 * time.Second
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("game already exists")

	// errKeep aborts an Update without writing.
	errKeep = errors.New("keep record")
)

// Repository is the typed view over a store.Store. It is safe for concurrent
// use as long as the underlying store is.
type Repository struct {
	store store.Store
}

func New(s store.Store) *Repository {
	return &Repository{store: s}
}

func gameKey(id string) string { return gamePrefix + id }

func confirmKey(gameID, playerID string) string {
	return confirmPref + gameID + ":" + playerID
}

// Queue returns the raw waiting list. Expired entries are not filtered here;
// ageing is the caller's policy.
func (r *Repository) Queue(ctx context.Context) ([]models.WaitingEntry, error) {
	data, err := r.store.Get(ctx, waitingKey)
	if err != nil {
		return nil, err
	}
	return decodeQueue(data)
}

// UpdateQueue atomically rewrites the waiting list. fn may run more than once.
func (r *Repository) UpdateQueue(ctx context.Context, fn func([]models.WaitingEntry) ([]models.WaitingEntry, error)) error {
	return r.store.Update(ctx, waitingKey, WaitingTTL, func(cur []byte) ([]byte, error) {
		entries, err := decodeQueue(cur)
		if err != nil {
			return nil, err
		}
		next, err := fn(entries)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			return nil, nil
		}
		return json.Marshal(next)
	})
}

// Game loads an active game record.
func (r *Repository) Game(ctx context.Context, id string) (*models.Game, error) {
	data, err := r.store.Get(ctx, gameKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return decodeGame(data)
}

// SaveGame writes a record unconditionally, refreshing its TTL.
func (r *Repository) SaveGame(ctx context.Context, g *models.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return r.store.Set(ctx, gameKey(g.ID), data, GameTTL)
}

// CreateGame writes a new record and fails with ErrGameExists when the id
// is already taken, whatever the existing record's status.
func (r *Repository) CreateGame(ctx context.Context, g *models.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return r.store.Update(ctx, gameKey(g.ID), GameTTL, func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("%w: %s", ErrGameExists, g.ID)
		}
		return data, nil
	})
}

// UpdateGame atomically applies fn to an existing record and returns the
// stored result. fn may run more than once, each time on a freshly decoded
// record; an error from fn leaves the record untouched.
func (r *Repository) UpdateGame(ctx context.Context, id string, fn func(*models.Game) error) (*models.Game, error) {
	var updated *models.Game
	err := r.store.Update(ctx, gameKey(id), GameTTL, func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
		}
		g, err := decodeGame(cur)
		if err != nil {
			return nil, err
		}
		if err := fn(g); err != nil {
			return nil, err
		}
		updated = g
		return json.Marshal(g)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGame removes a record and reports whether one existed.
func (r *Repository) DeleteGame(ctx context.Context, id string) (bool, error) {
	existed := false
	err := r.store.Update(ctx, gameKey(id), GameTTL, func(cur []byte) ([]byte, error) {
		existed = cur != nil
		return nil, nil
	})
	return existed, err
}

// DeleteGameIf removes the record only if match accepts its current
// state, and reports whether it did.
func (r *Repository) DeleteGameIf(ctx context.Context, id string, match func(*models.Game) bool) (bool, error) {
	deleted := false
	err := r.store.Update(ctx, gameKey(id), GameTTL, func(cur []byte) ([]byte, error) {
		deleted = false
		if cur == nil {
			return nil, errKeep
		}
		g, err := decodeGame(cur)
		if err != nil {
			return nil, err
		}
		if !match(g) {
			return nil, errKeep
		}
		deleted = true
		return nil, nil
	})
	if errors.Is(err, errKeep) {
		return false, nil
	}
	return deleted, err
}

// Confirm records that playerID accepted the tentative match gameID.
func (r *Repository) Confirm(ctx context.Context, gameID, playerID string) error {
	return r.store.Set(ctx, confirmKey(gameID, playerID), []byte("true"), ConfirmTTL)
}

// TakeConfirmation reports whether playerID confirmed gameID and consumes the
// flag when it did. Only the proposer reads a given flag.
func (r *Repository) TakeConfirmation(ctx context.Context, gameID, playerID string) (bool, error) {
	key := confirmKey(gameID, playerID)
	data, err := r.store.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return true, err
	}
	return true, nil
}

func decodeQueue(data []byte) ([]models.WaitingEntry, error) {
	if data == nil {
		return nil, nil
	}
	var entries []models.WaitingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode waiting queue: %w", err)
	}
	return entries, nil
}

func decodeGame(data []byte) (*models.Game, error) {
	var g models.Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}
