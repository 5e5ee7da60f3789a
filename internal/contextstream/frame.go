package contextstream

import (
	"context"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Service wraps the Core entity registry with context & view-stream verbs.
type Service struct {
	core *core.Store
}

// New wraps coreStore with context-stream operations.
func New(coreStore *core.Store) *Service {
	return &Service{core: coreStore}
}

// CreateFrame creates a ContextFrame for (owner, ownerType). If
// parentFrameUUID is non-nil, the new frame is subordinate: its containers
// are initialised as a snapshot copy of the parent's at this instant (§4.6
// fork inheritance, INV-5). A non-subordinate (root) frame is rejected with
// ValidationError if one already exists for (owner, ownerType) — INV-20
// "exactly one primary frame per (owner, owner_type)".
func (s *Service) CreateFrame(ctx context.Context, owner, ownerType string, n int, parentFrameUUID *string) (string, error) {
	if ownerType != OwnerOperator && ownerType != OwnerAgent && ownerType != OwnerScope {
		return "", kernerr.NewValidationError("owner_type", "must be operator, agent, or scope")
	}
	if n == 0 {
		n = DefaultN
	}
	if n < MinN || n > MaxN {
		return "", kernerr.NewValidationError("n", "must be in range [3,20]")
	}

	frame := Frame{
		Owner:        owner,
		OwnerType:    ownerType,
		Containers:   []string{},
		ViewTimeline: []string{},
	}

	if parentFrameUUID != nil {
		parent, err := s.getFrame(ctx, *parentFrameUUID)
		if err != nil {
			return "", err
		}
		frame.ParentFrameUUID = parentFrameUUID
		frame.Containers = append([]string{}, parent.Containers...)
	} else {
		existing, err := s.findPrimaryFrame(ctx, owner, ownerType)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return "", kernerr.NewValidationError("owner", "a primary frame already exists for this owner")
		}
	}

	if ownerType == OwnerOperator {
		frame.ActiveScopes = []string{}
	}

	data, err := marshalFrame(frame)
	if err != nil {
		return "", kernerr.NewStorageError("marshal context frame", err)
	}
	return s.core.Create(ctx, core.TypeContextFrame, nil, parentFrameUUID, data)
}

// findPrimaryFrame returns the UUID of the existing non-subordinate frame
// for (owner, ownerType), or "" if none exists.
func (s *Service) findPrimaryFrame(ctx context.Context, owner, ownerType string) (string, error) {
	rows, _, err := s.core.QueryWithFilters(ctx, core.TypeContextFrame, false, 1000, 0)
	if err != nil {
		return "", err
	}
	for _, e := range rows {
		f, err := unmarshalFrame(e.Data)
		if err != nil {
			continue
		}
		if f.Owner == owner && f.OwnerType == ownerType && f.ParentFrameUUID == nil {
			return e.UUID, nil
		}
	}
	return "", nil
}

func (s *Service) getFrame(ctx context.Context, uuid string) (Frame, error) {
	e, err := s.core.GetByID(ctx, uuid, core.TypeContextFrame)
	if err != nil {
		return Frame{}, err
	}
	return unmarshalFrame(e.Data)
}

// GetFrame returns the frame's current payload.
func (s *Service) GetFrame(ctx context.Context, uuid string) (Frame, error) {
	return s.getFrame(ctx, uuid)
}

// UpdateContainers is the LRU-N verb (§4.6). Visiting an entity whose type
// is in the primitive set never changes containers (primitive non-
// admission). Otherwise the visited UUID moves to the front, and the list
// is truncated to n.
func (s *Service) UpdateContainers(ctx context.Context, frameUUID, visitedUUID string, n int) (Frame, error) {
	if n == 0 {
		n = DefaultN
	}

	visited, err := s.core.GetByID(ctx, visitedUUID, "")
	if err != nil {
		return Frame{}, err
	}
	if IsPrimitive(visited.Type) {
		return s.getFrame(ctx, frameUUID)
	}

	frame, err := s.getFrame(ctx, frameUUID)
	if err != nil {
		return Frame{}, err
	}

	frame.Containers = pushFront(frame.Containers, ids.StripTag(visitedUUID), n)

	data, err := marshalFrame(frame)
	if err != nil {
		return Frame{}, kernerr.NewStorageError("marshal context frame", err)
	}
	if _, err := s.core.UpdateData(ctx, frameUUID, data); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// pushFront moves target to the front of list (removing any existing
// occurrence) and truncates the result to at most n entries.
func pushFront(list []string, target string, n int) []string {
	out := make([]string, 0, n)
	out = append(out, target)
	for _, v := range list {
		if v == target {
			continue
		}
		if len(out) >= n {
			break
		}
		out = append(out, v)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}
