//go:build !cgo

package malgohal

import (
	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/hal"
)

// New fails without cgo: miniaudio is a C library.
func New(Config) (*Service, error) {
	return nil, hal.NewError(hal.ErrCodeUnsupported, "malgo requires cgo", nil)
}

// Renderer is unavailable without cgo.
type Renderer struct{}

// NewRenderer returns a renderer whose units always fail to open.
func NewRenderer(*Service) *Renderer { return &Renderer{} }

// Open implements backend.Renderer.
func (r *Renderer) Open(backend.UnitConfig) (backend.RenderUnit, error) {
	return nil, hal.NewError(hal.ErrCodeUnsupported, "malgo requires cgo", nil)
}
