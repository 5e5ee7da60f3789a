package contextstream

import (
	"context"
	"time"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// CreateView persists a new, immutable View entity. actions must be
// non-empty and frameUUID must resolve to an existing frame (§4.6).
func (s *Service) CreateView(ctx context.Context, frameUUID, actor string, actions []Action, prev *string) (string, error) {
	if len(actions) == 0 {
		return "", kernerr.NewValidationError("actions", "must be non-empty")
	}
	if _, err := s.getFrame(ctx, frameUUID); err != nil {
		return "", err
	}

	view := View{
		Actor:            actor,
		Actions:          actions,
		StartedAt:        actions[0].Timestamp,
		Prev:             prev,
		ContextFrameUUID: ids.StripTag(frameUUID),
	}

	data, err := marshalView(view)
	if err != nil {
		return "", kernerr.NewStorageError("marshal view", err)
	}
	return s.core.Create(ctx, core.TypeView, nil, nil, data)
}

// AppendView appends viewUUID to frame's view_timeline, linking it to the
// prior tail via the View's prev field (linked-list ordering, INV-9). If
// the frame's tail has changed since the caller read it (concurrent
// creation racing on the same prev), this returns a ValidationError and the
// caller must retry with a fresh read (§5 "the loser observes a changed
// tail and MUST retry"). The view and frame writes land in one core.Mutate
// scope so neither can land without the other.
func (s *Service) AppendView(ctx context.Context, frameUUID, viewUUID string) error {
	return s.core.Mutate(ctx, func(ctx context.Context, scope *core.Scope) error {
		return s.appendView(ctx, scope, frameUUID, viewUUID)
	})
}

func (s *Service) appendView(ctx context.Context, scope *core.Scope, frameUUID, viewUUID string) error {
	frameEntity, err := scope.GetByID(ctx, frameUUID, core.TypeContextFrame)
	if err != nil {
		return err
	}
	frame, err := unmarshalFrame(frameEntity.Data)
	if err != nil {
		return err
	}

	viewEntity, err := scope.GetByID(ctx, viewUUID, core.TypeView)
	if err != nil {
		return err
	}
	view, err := unmarshalView(viewEntity.Data)
	if err != nil {
		return err
	}

	var tail *string
	if len(frame.ViewTimeline) > 0 {
		t := frame.ViewTimeline[len(frame.ViewTimeline)-1]
		tail = &t
	}

	if view.Prev == nil {
		view.Prev = tail
		data, err := marshalView(view)
		if err != nil {
			return kernerr.NewStorageError("marshal view", err)
		}
		if _, err := scope.UpdateData(ctx, viewUUID, data); err != nil {
			return err
		}
	} else if !stringPtrEqual(view.Prev, tail) {
		return kernerr.NewValidationError("prev", "view's prev no longer matches the frame's current tail; retry with a fresh read")
	}

	frame.ViewTimeline = append(frame.ViewTimeline, ids.StripTag(viewUUID))
	data, err := marshalFrame(frame)
	if err != nil {
		return kernerr.NewStorageError("marshal context frame", err)
	}
	_, err = scope.UpdateData(ctx, frameUUID, data)
	return err
}

// AppendViewToContexts applies the same View UUID atomically to multiple
// frames (e.g. an operator frame and its active scopes, INV-2 synchronised
// append). All frame updates commit together or none do: the whole batch
// runs inside a single core.Mutate scope, mirroring the teacher's raw-SQL
// transaction idiom (internal/storage/sqlite/queries.go) generalized from
// one row insert to a batch of entity updates, but through the same typed
// scope every other mutator in this package uses rather than a hand-rolled
// BEGIN/COMMIT bracket.
func (s *Service) AppendViewToContexts(ctx context.Context, viewUUID string, frameUUIDs []string) error {
	return s.core.Mutate(ctx, func(ctx context.Context, scope *core.Scope) error {
		for _, frameUUID := range frameUUIDs {
			if err := s.appendView(ctx, scope, frameUUID, viewUUID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) getView(ctx context.Context, uuid string) (View, error) {
	e, err := s.core.GetByID(ctx, uuid, core.TypeView)
	if err != nil {
		return View{}, err
	}
	return unmarshalView(e.Data)
}

// GetView returns a View's current payload.
func (s *Service) GetView(ctx context.Context, uuid string) (View, error) {
	return s.getView(ctx, uuid)
}

// ShouldCoalesce reports whether a new observation at `at` should be folded
// into an open view (ended_at == nil) rather than starting a new one: the
// idle gap since the view's last action must be within the coalescence
// window (default 5 minutes, §3, configurable per SPEC_FULL's
// view_coalesce_seconds).
func ShouldCoalesce(view View, at time.Time, window time.Duration) bool {
	if view.EndedAt != nil || len(view.Actions) == 0 {
		return false
	}
	last := view.Actions[len(view.Actions)-1].Timestamp
	return at.Sub(last) <= window
}

// Coalesce appends newActions to an open view's Actions in place.
func Coalesce(view View, newActions []Action) View {
	view.Actions = append(view.Actions, newActions...)
	return view
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
