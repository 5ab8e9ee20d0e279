package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "Ana", Identity{Username: "ana", DisplayName: "Ana"}.DisplayLabel())
	assert.Equal(t, "ana", Identity{Username: "ana", DisplayName: "  "}.DisplayLabel())
}

func TestCursorColor(t *testing.T) {
	assert.Equal(t, DefaultColor, Identity{}.CursorColor())
	assert.Equal(t, "#ff0000", Identity{Color: "#ff0000"}.CursorColor())
}

func TestValid(t *testing.T) {
	assert.True(t, Identity{ID: "7", Username: "ana"}.Valid())
	assert.False(t, Identity{ID: "7"}.Valid())
	assert.False(t, Identity{Username: "ana"}.Valid())
}
