// Package conversation implements the conversation fold operation (C8):
// attaching a summary and collapsing a conversation log while preserving
// its append-ability.
package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Summary authors (§3).
const (
	AuthorOperator = "operator"
	AuthorAgent    = "agent"
	AuthorSystem   = "system"
)

// Summary is the fold checkpoint attached to a ConversationLog (§3).
type Summary struct {
	Timestamp   time.Time `json:"timestamp"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	FragmentIDs []string  `json:"fragment_ids,omitempty"`
}

// Payload is the ConversationLog entity's data shape (§3).
type Payload struct {
	ParentUUID string   `json:"parent_uuid,omitempty"`
	Items      []string `json:"items"`
	Collapsed  bool     `json:"collapsed"`
	Summary    *Summary `json:"summary,omitempty"`
}

// Engine implements Fold over the Core entity registry.
type Engine struct {
	core *core.Store
}

// New wraps coreStore with the fold operation.
func New(coreStore *core.Store) *Engine {
	return &Engine{core: coreStore}
}

// Fold resolves the ConversationLog, rejects an empty/whitespace summary,
// and attaches the summary while marking the log collapsed (§4.8). Folding
// does not lock further appends: a collapsed log may continue to accept
// new items; the fold is a named checkpoint, not a seal.
func (e *Engine) Fold(ctx context.Context, logUUID, summaryContent, author string, fragmentIDs []string) error {
	if strings.TrimSpace(summaryContent) == "" {
		return kernerr.NewValidationError("summary_content", "must not be empty or whitespace")
	}
	switch author {
	case AuthorOperator, AuthorAgent, AuthorSystem:
	default:
		return kernerr.NewValidationError("author", "must be operator, agent, or system")
	}

	entity, err := e.core.GetByID(ctx, logUUID, core.TypeConversationLog)
	if err != nil {
		return err
	}

	var payload Payload
	if err := json.Unmarshal(entity.Data, &payload); err != nil {
		return kernerr.NewStorageError("unmarshal conversation log", err)
	}

	payload.Summary = &Summary{
		Timestamp:   time.Now().UTC(),
		Author:      author,
		Content:     summaryContent,
		FragmentIDs: fragmentIDs,
	}
	payload.Collapsed = true

	data, err := json.Marshal(payload)
	if err != nil {
		return kernerr.NewStorageError("marshal conversation log", err)
	}

	_, err = e.core.UpdateData(ctx, logUUID, data)
	return err
}

// AppendItem adds a Fact UUID to the log's items list. Accepted on a
// collapsed log: folding never seals appendability (§4.8).
func (e *Engine) AppendItem(ctx context.Context, logUUID, factUUID string) error {
	entity, err := e.core.GetByID(ctx, logUUID, core.TypeConversationLog)
	if err != nil {
		return err
	}

	var payload Payload
	if err := json.Unmarshal(entity.Data, &payload); err != nil {
		return kernerr.NewStorageError("unmarshal conversation log", err)
	}

	payload.Items = append(payload.Items, factUUID)

	data, err := json.Marshal(payload)
	if err != nil {
		return kernerr.NewStorageError("marshal conversation log", err)
	}

	_, err = e.core.UpdateData(ctx, logUUID, data)
	return err
}
