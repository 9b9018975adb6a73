package workers

import (
	"context"
	"time"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/repositories"
	"github.com/emberforge/vanguard/pkg/state"
)

type SaveStateWorker struct {
	repository        repositories.Repository
	saveCharacterChan <-chan SaveCharacterStateRequest
	stateManager      state.StateManager
	interval          time.Duration
}

type NewSaveStateWorkerOptions struct {
	Repository        repositories.Repository
	SaveCharacterChan <-chan SaveCharacterStateRequest
	StateManager      state.StateManager
	Interval          time.Duration
}

type SaveCharacterStateRequest struct {
	Timestamp   int64
	CharacterID int32
	Snapshot    messages.EntitySnapshot
}

// NewSaveStateWorker creates a new SaveStateWorker.
// The worker processes save requests from the game loop and
// periodically saves the published world view to the repository.
func NewSaveStateWorker(opts NewSaveStateWorkerOptions) *SaveStateWorker {
	return &SaveStateWorker{
		repository:        opts.Repository,
		saveCharacterChan: opts.SaveCharacterChan,
		stateManager:      opts.StateManager,
		interval:          opts.Interval,
	}
}

func (w *SaveStateWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case saveRequest := <-w.saveCharacterChan:
			w.saveCharacterState(ctx, saveRequest)
		case t := <-ticker.C:
			view, err := w.stateManager.Get(ctx)
			if err != nil {
				log.Error("Failed to get current world view: %v", err)
				continue
			}
			w.saveWorldView(ctx, t.UnixMilli(), view)
		}
	}
}

func (w *SaveStateWorker) saveCharacterState(ctx context.Context, saveRequest SaveCharacterStateRequest) {
	err := w.repository.SaveCharacterState(ctx, saveRequest.Timestamp, saveRequest.CharacterID, saveRequest.Snapshot)
	if err != nil {
		log.Error("Failed to save character state: %v", err)
	}
}

func (w *SaveStateWorker) saveWorldView(ctx context.Context, timestamp int64, view *state.WorldView) {
	for characterID, snapshot := range view.Characters {
		if err := w.repository.SaveCharacterState(ctx, timestamp, characterID, snapshot); err != nil {
			log.Error("Failed to save character %d: %v", characterID, err)
		}
	}
}
