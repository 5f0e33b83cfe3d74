package mail

import (
	"context"
	"fmt"
	"time"

	"mailgate/internal/metrics"
	"mailgate/internal/models"
)

func (s *Service) loadFlags(ctx context.Context, user, id string) (models.MessageFlags, error) {
	start := time.Now()
	flags, _, err := s.store.GetFlags(ctx, user, id)
	metrics.ObserveBackend("get_flags", err, start)
	if err != nil {
		return models.MessageFlags{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return flags, nil
}

// GetMessageFlags returns the stored flags of a message, or the zero record
// when none were ever set.
func (s *Service) GetMessageFlags(ctx context.Context, user, id string) (models.MessageFlags, error) {
	return s.loadFlags(ctx, user, id)
}

// SetMessageFlags merges update into the stored record and stamps it with
// the current time. Concurrent updates are last-writer-wins.
func (s *Service) SetMessageFlags(ctx context.Context, user, id string, update models.FlagUpdate) (models.MessageFlags, error) {
	current, err := s.loadFlags(ctx, user, id)
	if err != nil {
		return models.MessageFlags{}, err
	}

	flags := update.Apply(current)
	flags.UpdatedAt = s.now().UTC()

	start := time.Now()
	err = s.store.PutFlags(ctx, user, id, flags)
	metrics.ObserveBackend("put_flags", err, start)
	if err != nil {
		return models.MessageFlags{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return flags, nil
}
