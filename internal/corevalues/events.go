package corevalues

import (
	"github.com/sesdev/conduit/internal/es"
)

// Event type and schema version constants for the core values stream.
const (
	TypeInitialized        = "corevalues.initialized"
	TypeCustomValueDefined = "corevalues.custom_value_defined"
	TypeValueSelected      = "corevalues.value_selected"
	TypeValueDeselected    = "corevalues.value_deselected"

	schemaV1 = "1"
)

// Event is the closed set of facts the UserCoreValues aggregate can raise.
type Event interface {
	es.DomainEvent
	isCoreValuesEvent()
}

// Initialized starts a user's core values stream.
type Initialized struct {
	es.EventMeta
}

func (Initialized) EventType() string    { return TypeInitialized }
func (Initialized) EventVersion() string { return schemaV1 }
func (Initialized) isCoreValuesEvent()   {}

// CustomValueDefined records a user-authored value added to their personal
// dictionary.
type CustomValueDefined struct {
	es.EventMeta
	ValueID CoreValueID `json:"value_id"`
	Text    string      `json:"text"`
}

func (CustomValueDefined) EventType() string    { return TypeCustomValueDefined }
func (CustomValueDefined) EventVersion() string { return schemaV1 }
func (CustomValueDefined) isCoreValuesEvent()   {}

// ValueSelected records a value entering the user's selected set.
type ValueSelected struct {
	es.EventMeta
	ValueID  CoreValueID `json:"value_id"`
	Text     string      `json:"text"`
	IsCustom bool        `json:"is_custom"`
}

func (ValueSelected) EventType() string    { return TypeValueSelected }
func (ValueSelected) EventVersion() string { return schemaV1 }
func (ValueSelected) isCoreValuesEvent()   {}

// ValueDeselected records a value leaving the selected set.
type ValueDeselected struct {
	es.EventMeta
	ValueID CoreValueID `json:"value_id"`
}

func (ValueDeselected) EventType() string    { return TypeValueDeselected }
func (ValueDeselected) EventVersion() string { return schemaV1 }
func (ValueDeselected) isCoreValuesEvent()   {}

// RegisterEvents installs the decoders for every core values event variant.
func RegisterEvents(c *es.Codec) {
	es.RegisterJSON[Initialized](c, TypeInitialized, schemaV1)
	es.RegisterJSON[CustomValueDefined](c, TypeCustomValueDefined, schemaV1)
	es.RegisterJSON[ValueSelected](c, TypeValueSelected, schemaV1)
	es.RegisterJSON[ValueDeselected](c, TypeValueDeselected, schemaV1)
}
