package contextstream

import (
	"context"

	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// EnterScope appends scope to an operator frame's active_scopes. If
// primary_scope was unset, it becomes this scope (implied focus, INV-11b);
// entering a scope is not itself focusing it if a primary already exists
// (INV-11a). Non-operator frames reject this verb.
func (s *Service) EnterScope(ctx context.Context, frameUUID, scope string) error {
	frame, err := s.requireOperatorFrame(ctx, frameUUID)
	if err != nil {
		return err
	}

	scope = ids.StripTag(scope)
	if !containsString(frame.ActiveScopes, scope) {
		frame.ActiveScopes = append(frame.ActiveScopes, scope)
	}
	if frame.PrimaryScope == nil {
		frame.PrimaryScope = &scope
	}

	return s.saveFrame(ctx, frameUUID, frame)
}

// LeaveScope removes scope from active_scopes; if it was primary,
// primary_scope is cleared and the scope's view-stream suspends (no
// further appends reach it from the operator, INV-8 — enforced by the
// caller no longer including it in AppendViewToContexts targets).
func (s *Service) LeaveScope(ctx context.Context, frameUUID, scope string) error {
	frame, err := s.requireOperatorFrame(ctx, frameUUID)
	if err != nil {
		return err
	}

	scope = ids.StripTag(scope)
	frame.ActiveScopes = removeString(frame.ActiveScopes, scope)
	if frame.PrimaryScope != nil && *frame.PrimaryScope == scope {
		frame.PrimaryScope = nil
	}

	return s.saveFrame(ctx, frameUUID, frame)
}

// FocusScope changes primary_scope to scope. scope must already be active
// (INV-11); focusing an inactive scope raises ValidationError.
func (s *Service) FocusScope(ctx context.Context, frameUUID, scope string) error {
	frame, err := s.requireOperatorFrame(ctx, frameUUID)
	if err != nil {
		return err
	}

	scope = ids.StripTag(scope)
	if !containsString(frame.ActiveScopes, scope) {
		return kernerr.NewValidationError("scope", "cannot focus an inactive scope")
	}
	frame.PrimaryScope = &scope

	return s.saveFrame(ctx, frameUUID, frame)
}

func (s *Service) requireOperatorFrame(ctx context.Context, frameUUID string) (Frame, error) {
	frame, err := s.getFrame(ctx, frameUUID)
	if err != nil {
		return Frame{}, err
	}
	if frame.OwnerType != OwnerOperator {
		return Frame{}, kernerr.NewValidationError("owner_type", "scope verbs require an operator frame")
	}
	return frame, nil
}

func (s *Service) saveFrame(ctx context.Context, frameUUID string, frame Frame) error {
	data, err := marshalFrame(frame)
	if err != nil {
		return kernerr.NewStorageError("marshal context frame", err)
	}
	_, err = s.core.UpdateData(ctx, frameUUID, data)
	return err
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func removeString(list []string, target string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
