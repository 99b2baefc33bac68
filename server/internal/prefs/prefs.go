// Package prefs models a user's accessibility preferences as an explicit
// value passed to whatever consumes it. Loading and saving are separate
// collaborators (Loader, Saver) injected into Service.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Bounds for FontScale.
const (
	MinFontScale = 0.75
	MaxFontScale = 2.0
)

// Color schemes.
const (
	SchemeLight  = "light"
	SchemeDark   = "dark"
	SchemeSystem = "system"
)

var (
	// ErrNotFound is returned by a Loader that has nothing stored for a user.
	ErrNotFound = errors.New("preferences not found")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid preferences")
)

// Preferences is the full set of accessibility settings for one user.
type Preferences struct {
	FontScale       float64 `json:"font_scale"`
	HighContrast    bool    `json:"high_contrast"`
	ReducedMotion   bool    `json:"reduced_motion"`
	DyslexicFont    bool    `json:"dyslexic_font"`
	CalmingMode     bool    `json:"calming_mode"`
	StressDetection bool    `json:"stress_detection"`
	ColorScheme     string  `json:"color_scheme"`
}

// Defaults returns the preferences a new user starts with.
func Defaults() Preferences {
	return Preferences{
		FontScale:       1.0,
		StressDetection: true,
		ColorScheme:     SchemeSystem,
	}
}

// Validate reports whether p is within bounds.
func (p Preferences) Validate() error {
	if p.FontScale < MinFontScale || p.FontScale > MaxFontScale {
		return fmt.Errorf("%w: font_scale %.2f out of range [%.2f, %.2f]",
			ErrInvalid, p.FontScale, MinFontScale, MaxFontScale)
	}
	switch p.ColorScheme {
	case SchemeLight, SchemeDark, SchemeSystem:
	default:
		return fmt.Errorf("%w: color_scheme %q unknown: want light|dark|system", ErrInvalid, p.ColorScheme)
	}
	return nil
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	FontScale       *float64 `json:"font_scale,omitempty"`
	HighContrast    *bool    `json:"high_contrast,omitempty"`
	ReducedMotion   *bool    `json:"reduced_motion,omitempty"`
	DyslexicFont    *bool    `json:"dyslexic_font,omitempty"`
	CalmingMode     *bool    `json:"calming_mode,omitempty"`
	StressDetection *bool    `json:"stress_detection,omitempty"`
	ColorScheme     *string  `json:"color_scheme,omitempty"`
}

// Merge returns p with every non-nil field of patch written over it.
func (p Preferences) Merge(patch Patch) Preferences {
	if patch.FontScale != nil {
		p.FontScale = *patch.FontScale
	}
	if patch.HighContrast != nil {
		p.HighContrast = *patch.HighContrast
	}
	if patch.ReducedMotion != nil {
		p.ReducedMotion = *patch.ReducedMotion
	}
	if patch.DyslexicFont != nil {
		p.DyslexicFont = *patch.DyslexicFont
	}
	if patch.CalmingMode != nil {
		p.CalmingMode = *patch.CalmingMode
	}
	if patch.StressDetection != nil {
		p.StressDetection = *patch.StressDetection
	}
	if patch.ColorScheme != nil {
		p.ColorScheme = *patch.ColorScheme
	}
	return p
}

// Loader reads stored preferences. It returns ErrNotFound for unknown users.
type Loader interface {
	LoadPreferences(ctx context.Context, userID string) (Preferences, error)
}

// Saver persists preferences.
type Saver interface {
	SavePreferences(ctx context.Context, userID string, p Preferences) error
}

// Service reads and updates preferences through injected collaborators.
type Service struct {
	loader Loader
	saver  Saver
}

// NewService returns a Service backed by l and s.
func NewService(l Loader, s Saver) *Service {
	return &Service{loader: l, saver: s}
}

// Get returns the stored preferences for userID, or Defaults if none exist.
func (s *Service) Get(ctx context.Context, userID string) (Preferences, error) {
	p, err := s.loader.LoadPreferences(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("prefs: load %q: %w", userID, err)
	}
	return p, nil
}

// Update applies patch to the current preferences, validates and saves them.
// Nothing is saved when validation fails.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (Preferences, error) {
	cur, err := s.Get(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	next := cur.Merge(patch)
	if err := next.Validate(); err != nil {
		return cur, err
	}
	if err := s.saver.SavePreferences(ctx, userID, next); err != nil {
		return cur, fmt.Errorf("prefs: save %q: %w", userID, err)
	}
	return next, nil
}

// MemoryStore is an in-process Loader and Saver.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Preferences
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Preferences)}
}

// LoadPreferences implements Loader.
func (m *MemoryStore) LoadPreferences(_ context.Context, userID string) (Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data[userID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

// SavePreferences implements Saver.
func (m *MemoryStore) SavePreferences(_ context.Context, userID string, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = p
	return nil
}
