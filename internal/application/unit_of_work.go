package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/camp-logistics/internal/persistence"
)

// unitOfWork applies a group of writes as one unit. Stores implementing
// persistence.Transactor get a real transaction; other stores get a journal
// that restores every touched document when the callback fails.
type unitOfWork struct {
	store persistence.Store
}

func (u unitOfWork) run(ctx context.Context, fn func(tx persistence.Store) error) error {
	if t, ok := u.store.(persistence.Transactor); ok {
		return t.WithinTransaction(ctx, fn)
	}

	j := &journal{Store: u.store}
	if err := fn(j); err != nil {
		if rbErr := j.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w (compensation failed: %v)", err, rbErr)
		}
		return err
	}
	return nil
}

// journal records the previous version of every document it updates.
type journal struct {
	persistence.Store
	undo []func(ctx context.Context) error
}

func (j *journal) UpdateAttendee(ctx context.Context, id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	prev, err := j.Store.GetAttendee(ctx, id)
	if err != nil {
		return persistence.Attendee{}, err
	}
	updated, err := j.Store.UpdateAttendee(ctx, id, patch)
	if err != nil {
		return persistence.Attendee{}, err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.Store.UpsertAttendee(ctx, prev)
	})
	return updated, nil
}

func (j *journal) UpdateRoom(ctx context.Context, id string, patch persistence.RoomPatch) (persistence.Room, error) {
	prev, err := j.Store.GetRoom(ctx, id)
	if err != nil {
		return persistence.Room{}, err
	}
	updated, err := j.Store.UpdateRoom(ctx, id, patch)
	if err != nil {
		return persistence.Room{}, err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.Store.UpsertRoom(ctx, prev)
	})
	return updated, nil
}

func (j *journal) UpdateGroup(ctx context.Context, id string, patch persistence.GroupPatch) (persistence.Group, error) {
	prev, err := j.Store.GetGroup(ctx, id)
	if err != nil {
		return persistence.Group{}, err
	}
	updated, err := j.Store.UpdateGroup(ctx, id, patch)
	if err != nil {
		return persistence.Group{}, err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.Store.UpsertGroup(ctx, prev)
	})
	return updated, nil
}

// rollback replays the undo log newest first and reports every failure.
func (j *journal) rollback(ctx context.Context) error {
	var errs []error
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	j.undo = nil
	return errors.Join(errs...)
}
