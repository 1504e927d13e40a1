package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name    string
		batch   core.Batch
		wantErr bool
	}{
		{
			name:  "valid",
			batch: core.Batch{ThreadID: "t", ResourceID: "r", Messages: []core.Message{core.NewTextMessage(core.RoleUser, "hi")}},
		},
		{
			name:    "missing thread",
			batch:   core.Batch{ResourceID: "r"},
			wantErr: true,
		},
		{
			name:    "missing resource",
			batch:   core.Batch{ThreadID: "t"},
			wantErr: true,
		},
		{
			name:    "system role",
			batch:   core.Batch{ThreadID: "t", ResourceID: "r", Messages: []core.Message{core.NewTextMessage(core.RoleSystem, "x")}},
			wantErr: true,
		},
		{
			name:    "tool without call id",
			batch:   core.Batch{ThreadID: "t", ResourceID: "r", Messages: []core.Message{{Role: core.RoleTool}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateBatch(tt.batch)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStamp_MonotonicCreatedAt(t *testing.T) {
	last := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := last.Add(-time.Hour) // clock went backwards

	msgs := Stamp(core.Batch{
		ThreadID:   "t",
		ResourceID: "r",
		Messages: []core.Message{
			core.NewTextMessage(core.RoleUser, "a"),
			core.NewTextMessage(core.RoleUser, "b"),
		},
	}, 7, last, now)

	require.Len(t, msgs, 2)
	assert.Equal(t, int64(8), msgs[0].Seq)
	assert.Equal(t, int64(9), msgs[1].Seq)
	assert.True(t, msgs[0].CreatedAt.After(last))
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.Equal(t, "t", msgs[1].ThreadID)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "", Title(nil))
	assert.Equal(t, "hello", Title([]core.Message{
		core.NewTextMessage(core.RoleAssistant, "ignored"),
		core.NewTextMessage(core.RoleUser, "hello"),
	}))

	long := Title([]core.Message{core.NewTextMessage(core.RoleUser, strings.Repeat("ж", 100))})
	assert.Equal(t, maxTitleRunes, len([]rune(long)))
}

func TestWindow(t *testing.T) {
	var msgs []core.Message
	for i := int64(1); i <= 5; i++ {
		msgs = append(msgs, core.Message{Seq: i})
	}

	seqs := func(in []core.Message) []int64 {
		var out []int64
		for _, m := range in {
			out = append(out, m.Seq)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs(Window(msgs, core.QueryOptions{})))
	assert.Equal(t, []int64{4, 5}, seqs(Window(msgs, core.QueryOptions{Limit: 2})))
	assert.Equal(t, []int64{2, 3}, seqs(Window(msgs, core.QueryOptions{Limit: 2, BeforeSeq: 4})))
	assert.Equal(t, []int64{3, 4}, seqs(Window(msgs, core.QueryOptions{AfterSeq: 2, BeforeSeq: 5})))
	assert.Empty(t, Window(nil, core.QueryOptions{Limit: 3}))
}
