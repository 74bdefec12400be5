package goals

import (
	"github.com/sesdev/conduit/internal/es"
)

// Event type and schema version constants for the user goals stream.
const (
	TypeInitialized            = "goals.initialized"
	TypeGoalDefined            = "goals.goal_defined"
	TypePriorityGoalSelected   = "goals.priority_goal_selected"
	TypePriorityGoalDeselected = "goals.priority_goal_deselected"

	schemaV1 = "1"
)

// Event is the closed set of facts the UserGoals aggregate can raise. The
// unexported marker keeps the set sealed to this package; apply handles every
// variant exhaustively.
type Event interface {
	es.DomainEvent
	isGoalsEvent()
}

// Initialized starts a user's goal-setting stream.
type Initialized struct {
	es.EventMeta
}

func (Initialized) EventType() string    { return TypeInitialized }
func (Initialized) EventVersion() string { return schemaV1 }
func (Initialized) isGoalsEvent()        {}

// GoalDefined records a new goal, either a root goal (nil ParentID) or a
// breakdown of an existing one.
type GoalDefined struct {
	es.EventMeta
	GoalID      GoalID    `json:"goal_id"`
	Circle      Circle    `json:"circle"`
	Timeframe   Timeframe `json:"timeframe"`
	Description string    `json:"description"`
	ParentID    *GoalID   `json:"parent_id,omitempty"`
}

func (GoalDefined) EventType() string    { return TypeGoalDefined }
func (GoalDefined) EventVersion() string { return schemaV1 }
func (GoalDefined) isGoalsEvent()        {}

// PriorityGoalSelected marks a one-year goal as one of the user's priorities.
type PriorityGoalSelected struct {
	es.EventMeta
	GoalID GoalID `json:"goal_id"`
}

func (PriorityGoalSelected) EventType() string    { return TypePriorityGoalSelected }
func (PriorityGoalSelected) EventVersion() string { return schemaV1 }
func (PriorityGoalSelected) isGoalsEvent()        {}

// PriorityGoalDeselected removes a goal from the priority set.
type PriorityGoalDeselected struct {
	es.EventMeta
	GoalID GoalID `json:"goal_id"`
}

func (PriorityGoalDeselected) EventType() string    { return TypePriorityGoalDeselected }
func (PriorityGoalDeselected) EventVersion() string { return schemaV1 }
func (PriorityGoalDeselected) isGoalsEvent()        {}

// RegisterEvents installs the decoders for every goals event variant.
func RegisterEvents(c *es.Codec) {
	es.RegisterJSON[Initialized](c, TypeInitialized, schemaV1)
	es.RegisterJSON[GoalDefined](c, TypeGoalDefined, schemaV1)
	es.RegisterJSON[PriorityGoalSelected](c, TypePriorityGoalSelected, schemaV1)
	es.RegisterJSON[PriorityGoalDeselected](c, TypePriorityGoalDeselected, schemaV1)
}
