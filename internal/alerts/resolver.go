// Package alerts turns reminder offsets into alert instants and delivers the
// alerts that come due.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/recurrence"
)

var (
	// ErrNoDueDate is returned when offsets are set on an item without a due date.
	ErrNoDueDate = errors.New("alerts: reminder offsets require a due date")
	// ErrNegativeOffset is returned for an offset below zero.
	ErrNegativeOffset = errors.New("alerts: reminder offsets must not be negative")
	// ErrOffsetTooLarge is returned for an offset beyond MaxOffsetMinutes.
	ErrOffsetTooLarge = errors.New("alerts: reminder offset exceeds the alert window")
)

const (
	// MaxOffsetDays is how far ahead of its due instant an alert may fire.
	// Alert scans look this far past their window.
	MaxOffsetDays = 30
	// MaxOffsetMinutes is MaxOffsetDays in minutes.
	MaxOffsetMinutes = MaxOffsetDays * 24 * 60
)

// Target is the due point an alert is computed against. A nil Time means the
// item is all-day and falls due at midnight.
type Target struct {
	Date recurrence.Date
	Time *recurrence.TimeOfDay
}

// DefaultOffsetProvider supplies the offsets used when an item leaves its own
// offsets unset.
type DefaultOffsetProvider interface {
	DefaultOffsets(ctx context.Context) ([]int, error)
}

// StaticOffsets is a DefaultOffsetProvider backed by configuration.
type StaticOffsets []int

// DefaultOffsets implements DefaultOffsetProvider.
func (s StaticOffsets) DefaultOffsets(context.Context) ([]int, error) {
	out := make([]int, len(s))
	copy(out, s)
	return out, nil
}

// Resolver computes alert instants in a fixed location.
type Resolver struct {
	location *time.Location
	defaults DefaultOffsetProvider
}

// NewResolver creates a Resolver. A nil location means UTC; a nil provider
// means unset offsets produce no alerts.
func NewResolver(location *time.Location, defaults DefaultOffsetProvider) *Resolver {
	if location == nil {
		location = time.UTC
	}
	return &Resolver{location: location, defaults: defaults}
}

// Due returns the instant target falls due.
func (r *Resolver) Due(target Target) (time.Time, error) {
	if target.Date.IsZero() {
		return time.Time{}, ErrNoDueDate
	}
	if target.Time == nil {
		return target.Date.In(r.location), nil
	}
	return target.Time.On(target.Date, r.location), nil
}

// Resolve returns one instant per offset, each offset minutes before the due
// instant. Coinciding instants are kept.
func (r *Resolver) Resolve(ctx context.Context, target Target, offsets mo.Option[[]int]) ([]time.Time, error) {
	// Defaults only apply to items that have a due date.
	if offsets.IsAbsent() && target.Date.IsZero() {
		return nil, nil
	}
	values, err := r.EffectiveOffsets(ctx, offsets)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	due, err := r.Due(target)
	if err != nil {
		return nil, err
	}

	instants := make([]time.Time, 0, len(values))
	for _, minutes := range values {
		if err := CheckOffset(minutes); err != nil {
			return nil, err
		}
		instants = append(instants, due.Add(-time.Duration(minutes)*time.Minute))
	}
	return instants, nil
}

// EffectiveOffsets returns offsets when set, or the provider defaults.
func (r *Resolver) EffectiveOffsets(ctx context.Context, offsets mo.Option[[]int]) ([]int, error) {
	if values, ok := offsets.Get(); ok {
		return values, nil
	}
	if r.defaults == nil {
		return nil, nil
	}
	values, err := r.defaults.DefaultOffsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default reminder offsets: %w", err)
	}
	return values, nil
}

// CheckOffsets validates offsets submitted for an item whose due date is
// date. It is the precondition Resolve relies on.
func CheckOffsets(date recurrence.Date, offsets mo.Option[[]int]) error {
	values, ok := offsets.Get()
	if !ok || len(values) == 0 {
		return nil
	}
	if date.IsZero() {
		return ErrNoDueDate
	}
	for _, minutes := range values {
		if err := CheckOffset(minutes); err != nil {
			return err
		}
	}
	return nil
}

// CheckOffset reports whether minutes is a usable reminder offset.
func CheckOffset(minutes int) error {
	switch {
	case minutes < 0:
		return fmt.Errorf("%w: %d", ErrNegativeOffset, minutes)
	case minutes > MaxOffsetMinutes:
		return fmt.Errorf("%w: %d > %d", ErrOffsetTooLarge, minutes, MaxOffsetMinutes)
	}
	return nil
}
