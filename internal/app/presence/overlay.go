package presence

import (
	"context"

	"comfycollab/internal/app/user"
)

// Source is the read side of a Channel.
type Source interface {
	Identity() user.Identity
	Cursors() []CursorPresence
	Selections() []SelectionPresence
	Subscribe() (<-chan Change, func())
}

// Renderer draws one frame of remote presence.
type Renderer interface {
	Render(cursors []CursorMark, selections []SelectionMark)
}

// Overlay re-renders remote presence whenever the source changes.
type Overlay struct {
	source   Source
	locator  NodeLocator
	renderer Renderer
}

// NewOverlay returns an overlay over source.
func NewOverlay(source Source, locator NodeLocator, renderer Renderer) *Overlay {
	return &Overlay{source: source, locator: locator, renderer: renderer}
}

// Refresh renders the current snapshots once.
func (o *Overlay) Refresh() {
	localID := o.source.Identity().ID
	o.renderer.Render(
		ProjectCursors(o.source.Cursors(), localID),
		ProjectSelections(o.source.Selections(), localID, o.locator),
	)
}

// Run renders immediately and after every change until ctx is done.
func (o *Overlay) Run(ctx context.Context) {
	changes, cancel := o.source.Subscribe()
	defer cancel()

	o.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			o.Refresh()
		}
	}
}
