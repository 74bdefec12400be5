// Package corevalues holds the UserCoreValues aggregate: the personal values a
// user has defined and the bounded subset they currently hold as selected.
package corevalues

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/es"
)

// Domain errors.
var (
	ErrNotInitialized    = errors.New("user core values not initialized")
	ErrInvalidValueText  = errors.New("invalid core value text")
	ErrCustomValueExists = errors.New("custom value text already defined")
	ErrValueNotFound     = errors.New("value to select not found")
	ErrValueNotSelected  = errors.New("value is not selected")
	ErrSelectionLimit    = errors.New("selection limit reached")
)

// SelectionLimit bounds how many values may be selected at once.
const SelectionLimit = 5

const maxValueTextLen = 100

// CoreValueID identifies one core value, system or custom.
type CoreValueID uuid.UUID

// NewCoreValueID returns a random CoreValueID.
func NewCoreValueID() CoreValueID { return CoreValueID(uuid.Must(uuid.NewV4())) }

// ParseCoreValueID parses the canonical UUID string form.
func ParseCoreValueID(s string) (CoreValueID, error) {
	u, err := uuid.FromString(s)
	return CoreValueID(u), err
}

func (v CoreValueID) String() string { return uuid.UUID(v).String() }
func (v CoreValueID) IsZero() bool   { return uuid.UUID(v) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler.
func (v CoreValueID) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *CoreValueID) UnmarshalText(text []byte) error {
	u, err := uuid.FromString(string(text))
	if err != nil {
		return err
	}
	*v = CoreValueID(u)
	return nil
}

// UserCoreValues is the event-sourced value set of one user. The aggregate id
// is the user id.
type UserCoreValues struct {
	es.Root
	userID       core.UserID
	customValues map[CoreValueID]string
	selected     map[CoreValueID]string
	initialized  bool
}

// NewUserCoreValues returns a blank instance ready for replay.
func NewUserCoreValues(userID core.UserID) *UserCoreValues {
	return &UserCoreValues{
		userID:       userID,
		customValues: make(map[CoreValueID]string),
		selected:     make(map[CoreValueID]string),
	}
}

// Initialize creates a new value set and raises the opening event.
func Initialize(userID core.UserID, tenantID core.TenantID) *UserCoreValues {
	v := NewUserCoreValues(userID)
	v.raise(Initialized{EventMeta: es.NewEventMeta(tenantID, v.Version()+1)})
	return v
}

// UserID returns the owning user.
func (v *UserCoreValues) UserID() core.UserID { return v.userID }

// DefineCustomValue adds a new value to the user's personal dictionary. Text is
// unique per user, compared case-insensitively.
func (v *UserCoreValues) DefineCustomValue(text string, tenantID core.TenantID) (CoreValueID, error) {
	if !v.initialized {
		return CoreValueID{}, ErrNotInitialized
	}
	norm, err := normalizeValueText(text)
	if err != nil {
		return CoreValueID{}, err
	}
	for _, existing := range v.customValues {
		if strings.EqualFold(existing, norm) {
			return CoreValueID{}, fmt.Errorf("%w: %q", ErrCustomValueExists, norm)
		}
	}
	id := NewCoreValueID()
	v.raise(CustomValueDefined{
		EventMeta: es.NewEventMeta(tenantID, v.Version()+1),
		ValueID:   id,
		Text:      norm,
	})
	return id, nil
}

// SelectValue adds a value to the selected set. System values are validated by
// the caller; custom values must exist in the user's dictionary. Selecting an
// already selected value is a no-op.
func (v *UserCoreValues) SelectValue(valueID CoreValueID, text string, isSystem bool, tenantID core.TenantID) error {
	if !v.initialized {
		return ErrNotInitialized
	}
	norm, err := normalizeValueText(text)
	if err != nil {
		return err
	}
	if _, already := v.selected[valueID]; already {
		return nil
	}
	if len(v.selected) >= SelectionLimit {
		return fmt.Errorf("%w: %d", ErrSelectionLimit, SelectionLimit)
	}
	if !isSystem {
		if _, ok := v.customValues[valueID]; !ok {
			return fmt.Errorf("%w: %s", ErrValueNotFound, valueID)
		}
	}
	v.raise(ValueSelected{
		EventMeta: es.NewEventMeta(tenantID, v.Version()+1),
		ValueID:   valueID,
		Text:      norm,
		IsCustom:  !isSystem,
	})
	return nil
}

// DeselectValue removes a value from the selected set. Deselecting a value that
// is not selected is a domain error.
func (v *UserCoreValues) DeselectValue(valueID CoreValueID, tenantID core.TenantID) error {
	if !v.initialized {
		return ErrNotInitialized
	}
	if _, ok := v.selected[valueID]; !ok {
		return fmt.Errorf("%w: %s", ErrValueNotSelected, valueID)
	}
	v.raise(ValueDeselected{
		EventMeta: es.NewEventMeta(tenantID, v.Version()+1),
		ValueID:   valueID,
	})
	return nil
}

// SelectedValues returns a copy of the selected set.
func (v *UserCoreValues) SelectedValues() map[CoreValueID]string {
	out := make(map[CoreValueID]string, len(v.selected))
	for id, text := range v.selected {
		out[id] = text
	}
	return out
}

// CustomValues returns a copy of the user's custom dictionary.
func (v *UserCoreValues) CustomValues() map[CoreValueID]string {
	out := make(map[CoreValueID]string, len(v.customValues))
	for id, text := range v.customValues {
		out[id] = text
	}
	return out
}

// LoadFromHistory replays a stored stream onto a blank instance.
func (v *UserCoreValues) LoadFromHistory(events []es.DomainEvent) error {
	return v.Replay(events, v.apply)
}

func (v *UserCoreValues) raise(e Event) {
	v.Raise(e, v.apply)
}

func (v *UserCoreValues) apply(e es.DomainEvent) {
	switch ev := e.(type) {
	case Initialized:
		v.initialized = true
	case CustomValueDefined:
		v.customValues[ev.ValueID] = ev.Text
	case ValueSelected:
		v.selected[ev.ValueID] = ev.Text
	case ValueDeselected:
		delete(v.selected, ev.ValueID)
	default:
		panic(fmt.Sprintf("corevalues: unhandled event %T", e))
	}
}

func normalizeValueText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidValueText)
	}
	if len(s) > maxValueTextLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidValueText, maxValueTextLen)
	}
	return s, nil
}
