//go:build !linux

package alsahal

import "github.com/smazurov/audionode/internal/hal"

// Service is unavailable off Linux.
type Service struct {
	hal.Service
}

// New always fails off Linux.
func New(Config) (*Service, error) {
	return nil, hal.NewError(hal.ErrCodeUnsupported, "ALSA requires Linux", nil)
}

// SetDefaults is unavailable off Linux.
func (s *Service) SetDefaults(string, string) error {
	return hal.ErrUnsupported
}

// Close is a no-op off Linux.
func (s *Service) Close() error { return nil }
