package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTableUpsertReplacesByUser(t *testing.T) {
	tbl := NewTable[CursorPresence]()
	now := time.Now()

	tbl.Upsert(CursorPresence{UserID: "b", X: 0.1, LastSeen: now})
	tbl.Upsert(CursorPresence{UserID: "a", X: 0.2, LastSeen: now})
	tbl.Upsert(CursorPresence{UserID: "b", X: 0.3, LastSeen: now})

	assert.Equal(t, 2, tbl.Len())

	got, ok := tbl.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 0.3, got.X)

	snap := tbl.Snapshot()
	assert.Equal(t, "a", snap[0].UserID)
	assert.Equal(t, "b", snap[1].UserID)

	assert.True(t, tbl.Delete("a"))
	assert.False(t, tbl.Delete("a"))

	tbl.Clear()
	assert.Zero(t, tbl.Len())
}

func TestTableEvictOlderThan(t *testing.T) {
	tbl := NewTable[SelectionPresence]()
	now := time.Now()

	tbl.Upsert(SelectionPresence{UserID: "old", LastSeen: now.Add(-31 * time.Second)})
	tbl.Upsert(SelectionPresence{UserID: "edge", LastSeen: now.Add(-30 * time.Second)})
	tbl.Upsert(SelectionPresence{UserID: "fresh", LastSeen: now})

	evicted := tbl.EvictOlderThan(now, 30*time.Second)

	assert.Equal(t, []string{"old"}, evicted)
	assert.Equal(t, 2, tbl.Len())
}

func TestNodeSet(t *testing.T) {
	set := NewNodeSet("3", "", "1", "3")

	assert.Equal(t, NodeSet{"1", "3"}, set)
	assert.True(t, set.Contains("3"))
	assert.False(t, set.Contains("2"))
}
