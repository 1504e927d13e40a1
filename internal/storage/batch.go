// Package storage holds helpers shared by the store backends.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/tuskmem/internal/core"
)

var (
	ErrResourceMismatch = errors.New("thread belongs to another resource")
	ErrMessageNotFound  = errors.New("message not found")
)

// Tick is the smallest createdAt step; every backend stores microseconds.
const Tick = time.Microsecond

const maxTitleRunes = 60

func ValidateBatch(b core.Batch) error {
	if b.ThreadID == "" {
		return fmt.Errorf("%w: empty thread id", core.ErrInvalidRequest)
	}
	if b.ResourceID == "" {
		return fmt.Errorf("%w: empty resource id", core.ErrInvalidRequest)
	}
	for i, m := range b.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", core.ErrInvalidRequest, i, m.Role)
		}
		if m.Role == core.RoleTool && m.ToolCallID == "" {
			return fmt.Errorf("%w: tool message %d without tool call id", core.ErrInvalidRequest, i)
		}
	}
	return nil
}

// Now is the commit clock, truncated to Tick.
func Now() time.Time {
	return time.Now().UTC().Truncate(Tick)
}

// Stamp assigns ids, sequence numbers and creation times. Sequence numbers
// continue after lastSeq; createdAt never goes backwards within the thread.
func Stamp(b core.Batch, lastSeq int64, lastCreated, now time.Time) []core.Message {
	out := make([]core.Message, 0, len(b.Messages))
	created := now
	for i, m := range b.Messages {
		if !created.After(lastCreated) {
			created = lastCreated.Add(Tick)
		}
		m.ThreadID = b.ThreadID
		m.ResourceID = b.ResourceID
		m.Seq = lastSeq + int64(i) + 1
		m.CreatedAt = created
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Parts = append([]core.Part(nil), m.Parts...)
		out = append(out, m)
		lastCreated = created
	}
	return out
}

// Title derives a thread title from the first user message of a batch.
func Title(msgs []core.Message) string {
	for _, m := range msgs {
		if m.Role != core.RoleUser {
			continue
		}
		text := []rune(m.Text())
		if len(text) == 0 {
			continue
		}
		if len(text) > maxTitleRunes {
			return string(text[:maxTitleRunes-1]) + "…"
		}
		return string(text)
	}
	return ""
}

func CloneMessage(m core.Message) core.Message {
	m.Parts = append([]core.Part(nil), m.Parts...)
	return m
}

// Window applies QueryOptions to msgs already sorted by Seq.
func Window(msgs []core.Message, opts core.QueryOptions) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if opts.BeforeSeq > 0 && m.Seq >= opts.BeforeSeq {
			continue
		}
		if opts.AfterSeq > 0 && m.Seq <= opts.AfterSeq {
			continue
		}
		out = append(out, CloneMessage(m))
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

func EncodeParts(parts []core.Part) (string, error) {
	if parts == nil {
		parts = []core.Part{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parts: %w", err)
	}
	return string(data), nil
}

func DecodeParts(data string) ([]core.Part, error) {
	var parts []core.Part
	if data == "" {
		return parts, nil
	}
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parts: %w", err)
	}
	return parts, nil
}
