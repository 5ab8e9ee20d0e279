package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDUnique(t *testing.T) {
	assert.NotEqual(t, SessionID(), SessionID())
}

func TestIsValidCanvasID(t *testing.T) {
	assert.True(t, IsValidCanvasID("workflow-12"))
	assert.True(t, IsValidCanvasID("42"))
	assert.False(t, IsValidCanvasID(""))
	assert.False(t, IsValidCanvasID("a/b"))
	assert.False(t, IsValidCanvasID(strings.Repeat("a", CanvasIDMaxLength+1)))
}

func TestIsValidHexColor(t *testing.T) {
	assert.True(t, IsValidHexColor("#3498db"))
	assert.True(t, IsValidHexColor("#FFF"))
	assert.False(t, IsValidHexColor("3498db"))
	assert.False(t, IsValidHexColor("#12345"))
}
