// Package memory assembles the context window for a turn from recent
// history, semantic recall and working memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/normalizer"
	"github.com/sandevgo/tuskmem/internal/storage"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type Memory struct {
	store   core.Store
	index   *Index
	prompt  *SysPrompt
	counter core.TokenCounter
}

// NewMemory wires the assembler. index and counter may be nil, which turns
// off semantic recall and token budgeting.
func NewMemory(store core.Store, index *Index, prompt *SysPrompt, counter core.TokenCounter) *Memory {
	if prompt == nil {
		prompt = NewSysPrompt(nil)
	}
	return &Memory{
		store:   store,
		index:   index,
		prompt:  prompt,
		counter: counter,
	}
}

type AssembleRequest struct {
	ThreadID   string
	ResourceID string
	// Input is the new user input of the turn, not yet persisted.
	Input   []string
	Options core.MemoryOptions
}

func (m *Memory) Assemble(ctx context.Context, req AssembleRequest) (*core.ContextWindow, error) {
	logger := log.FromCtx(ctx)
	opts := req.Options

	// 1. Recent history
	var recent []core.Message
	if opts.LastMessages > 0 {
		var err error
		recent, err = m.store.Query(ctx, req.ThreadID, core.QueryOptions{Limit: opts.LastMessages})
		if err != nil {
			return nil, err
		}
	}

	// 2. Semantic recall, best effort
	var recalled []core.Message
	if opts.SemanticRecall && m.index != nil && opts.TopK > 0 {
		var err error
		recalled, err = m.recall(ctx, req)
		if err != nil {
			var re *core.RecallError
			if !errors.As(err, &re) {
				err = &core.RecallError{Err: err}
			}
			logger.Warn().Err(err).Str("thread", req.ThreadID).Msg("semantic recall degraded to recent history")
			recalled = nil
		}
	}

	// 3. Merge in chronological order
	merged, added := merge(recent, recalled)

	// 4. Working memory
	var wm *core.WorkingMemory
	if opts.WorkingMemory {
		var err error
		wm, err = m.store.GetWorkingMemory(ctx, req.ThreadID)
		if err != nil {
			return nil, err
		}
	}
	system := m.prompt.Build(wm, opts.WorkingMemoryMode, opts.WorkingMemory)

	// 5. Token budget, then tool pair repair
	if opts.MaxContextTokens > 0 && m.counter != nil {
		merged = m.trim(ctx, system, req.Input, merged, opts.MaxContextTokens)
	}
	merged = sanitizeToolCalls(ctx, merged)
	if merged == nil {
		merged = []core.Message{}
	}

	logger.Debug().
		Str("thread", req.ThreadID).
		Int("recent", len(recent)).
		Int("recalled", added).
		Int("window", len(merged)).
		Msg("context window assembled")

	return &core.ContextWindow{
		System:        system,
		Messages:      merged,
		WorkingMemory: wm,
		Recalled:      added,
	}, nil
}

func (m *Memory) recall(ctx context.Context, req AssembleRequest) ([]core.Message, error) {
	opts := req.Options
	scope := core.Scope{Kind: opts.RecallScope, ThreadID: req.ThreadID, ResourceID: req.ResourceID}
	if scope.Kind == "" {
		scope.Kind = core.ScopeThread
	}

	hits, err := m.index.Search(ctx, scope, strings.Join(req.Input, "\n"), opts.TopK)
	if err != nil {
		return nil, &core.RecallError{Err: err}
	}

	var out []core.Message
	for _, hit := range hits {
		if opts.MessageRange <= 0 {
			msgs, err := m.store.GetMessages(ctx, []string{hit.MessageID})
			if err != nil {
				return nil, &core.RecallError{Err: err}
			}
			out = append(out, msgs...)
			continue
		}

		r := int64(opts.MessageRange)
		msgs, err := m.store.Query(ctx, hit.ThreadID, core.QueryOptions{
			AfterSeq:  max(hit.Seq-r-1, 0),
			BeforeSeq: hit.Seq + r + 1,
		})
		if err != nil {
			return nil, &core.RecallError{Err: err}
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// merge deduplicates by id and orders by creation time. It reports how many
// recalled messages were not already recent.
func merge(recent, recalled []core.Message) ([]core.Message, int) {
	seen := make(map[string]bool, len(recent)+len(recalled))
	out := make([]core.Message, 0, len(recent)+len(recalled))
	for _, msg := range recent {
		seen[msg.ID] = true
		out = append(out, msg)
	}

	added := 0
	for _, msg := range recalled {
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		out = append(out, msg)
		added++
	}

	if added > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			if a.ThreadID != b.ThreadID {
				return a.ThreadID < b.ThreadID
			}
			return a.Seq < b.Seq
		})
	}
	return out, added
}

// trim drops the oldest messages until the window fits budget tokens.
func (m *Memory) trim(ctx context.Context, system, input []string, msgs []core.Message, budget int) []core.Message {
	used := 0
	for _, s := range system {
		used += m.counter.Count(s)
	}
	for _, s := range input {
		used += m.counter.Count(s)
	}

	sizes := make([]int, len(msgs))
	for i, msg := range msgs {
		sizes[i] = m.counter.Count(renderForCount(msg))
		used += sizes[i]
	}

	start := 0
	for used > budget && start < len(msgs) {
		used -= sizes[start]
		start++
	}

	if start > 0 {
		log.FromCtx(ctx).Debug().Int("dropped", start).Int("budget", budget).Msg("trimmed context window")
	}
	return msgs[start:]
}

func renderForCount(msg core.Message) string {
	var sb strings.Builder
	sb.WriteString(msg.IndexText())
	for _, tc := range msg.ToolCalls() {
		sb.WriteString(tc.Function.Name)
		sb.WriteString(tc.Function.Arguments)
	}
	if r := msg.ToolResult(); r != nil {
		sb.WriteString(r.Error)
	}
	return sb.String()
}

// Query returns stored messages in sequence order with their UI form.
func (m *Memory) Query(ctx context.Context, threadID string, opts core.QueryOptions) (*core.QueryResult, error) {
	msgs, err := m.store.Query(ctx, threadID, opts)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{
		Messages:   msgs,
		UIMessages: normalizer.ToUIMessages(msgs),
	}, nil
}

func (m *Memory) Append(ctx context.Context, threadID, resourceID string, msg core.Message) (core.Message, error) {
	return storage.Append(ctx, m.store, threadID, resourceID, msg)
}

// UpdateWorkingMemory merges patch into the thread's working memory through
// the same commit path turns use.
func (m *Memory) UpdateWorkingMemory(ctx context.Context, threadID, resourceID string, patch core.WorkingMemoryPatch) (*core.WorkingMemory, error) {
	_, err := m.store.Commit(ctx, core.Batch{
		ThreadID:      threadID,
		ResourceID:    resourceID,
		WorkingMemory: &patch,
	})
	if err != nil {
		return nil, err
	}
	return m.store.GetWorkingMemory(ctx, threadID)
}

func (m *Memory) WorkingMemory(ctx context.Context, threadID string) (*core.WorkingMemory, error) {
	return m.store.GetWorkingMemory(ctx, threadID)
}

func (m *Memory) Thread(ctx context.Context, threadID string) (*core.Thread, error) {
	return m.store.GetThread(ctx, threadID)
}

func (m *Memory) Threads(ctx context.Context, resourceID string) ([]core.Thread, error) {
	return m.store.ListThreads(ctx, resourceID)
}
