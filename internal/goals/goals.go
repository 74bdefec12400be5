// Package goals holds the UserGoals aggregate: the "goal setting to the now"
// breakdown of long-term goals per life circle, with a bounded set of one-year
// priority goals.
package goals

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
	ErrNotInitialized     = errors.New("user goals not initialized")
	ErrGoalExists         = errors.New("goal id already exists")
	ErrGoalNotFound       = errors.New("goal not found")
	ErrInvalidBreakdown   = errors.New("invalid timeframe breakdown")
	ErrInvalidDescription = errors.New("invalid goal description")
	ErrNotOneYearGoal     = errors.New("only one-year goals can be priorities")
	ErrPriorityLimit      = errors.New("priority goal limit reached")
	ErrUnknownCircle      = errors.New("unknown circle")
)

// MaxPriorityGoals bounds the priority set.
const MaxPriorityGoals = 3

const maxDescriptionLen = 500

// GoalID identifies one goal inside a user's goal set.
type GoalID uuid.UUID

// NewGoalID returns a random GoalID.
func NewGoalID() GoalID { return GoalID(uuid.Must(uuid.NewV4())) }

// ParseGoalID parses the canonical UUID string form.
func ParseGoalID(s string) (GoalID, error) {
	u, err := uuid.FromString(s)
	return GoalID(u), err
}

func (g GoalID) String() string { return uuid.UUID(g).String() }
func (g GoalID) IsZero() bool   { return uuid.UUID(g) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler so GoalID keys and fields
// serialize as canonical UUID strings.
func (g GoalID) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GoalID) UnmarshalText(text []byte) error {
	u, err := uuid.FromString(string(text))
	if err != nil {
		return err
	}
	*g = GoalID(u)
	return nil
}

// Circle is one of the seven life areas goals are set in.
type Circle string

const (
	CircleSpiritual        Circle = "SPIRITUAL"
	CirclePhysical         Circle = "PHYSICAL"
	CirclePersonal         Circle = "PERSONAL"
	CircleKeyRelationships Circle = "KEY_RELATIONSHIPS"
	CircleBusiness         Circle = "BUSINESS"
	CircleJob              Circle = "JOB"
	CircleFinancial        Circle = "FINANCIAL"
)

var circles = map[Circle]struct{}{
	CircleSpiritual: {}, CirclePhysical: {}, CirclePersonal: {},
	CircleKeyRelationships: {}, CircleBusiness: {}, CircleJob: {}, CircleFinancial: {},
}

// ParseCircle resolves a case-insensitive circle name.
func ParseCircle(s string) (Circle, error) {
	c := Circle(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := circles[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCircle, s)
	}
	return c, nil
}

// Timeframe is one level of the goal breakdown ladder.
type Timeframe string

const (
	TimeframeLongTerm         Timeframe = "LONG_TERM"
	TimeframeMidTerm          Timeframe = "MID_TERM"
	TimeframeSecondaryMidTerm Timeframe = "SECONDARY_MID_TERM"
	TimeframeOneYear          Timeframe = "ONE_YEAR"
)

// Next returns the timeframe a goal at t breaks down into, or false for the
// bottom of the ladder.
func (t Timeframe) Next() (Timeframe, bool) {
	switch t {
	case TimeframeLongTerm:
		return TimeframeMidTerm, true
	case TimeframeMidTerm:
		return TimeframeSecondaryMidTerm, true
	case TimeframeSecondaryMidTerm:
		return TimeframeOneYear, true
	default:
		return "", false
	}
}

// GoalDetails is the stored view of one goal.
type GoalDetails struct {
	ID          GoalID
	Circle      Circle
	Timeframe   Timeframe
	Description string
	ParentID    *GoalID
}

// UserGoals is the event-sourced goal set of one user. The aggregate id is the
// user id.
type UserGoals struct {
	es.Root
	userID      core.UserID
	goals       map[GoalID]GoalDetails
	priorityIDs map[GoalID]struct{}
	initialized bool
}

// NewUserGoals returns a blank instance ready for replay.
func NewUserGoals(userID core.UserID) *UserGoals {
	return &UserGoals{
		userID:      userID,
		goals:       make(map[GoalID]GoalDetails),
		priorityIDs: make(map[GoalID]struct{}),
	}
}

// Initialize creates a new goal set and raises the opening event.
func Initialize(userID core.UserID, tenantID core.TenantID) *UserGoals {
	g := NewUserGoals(userID)
	g.raise(Initialized{EventMeta: es.NewEventMeta(tenantID, g.Version()+1)})
	return g
}

// UserID returns the owning user.
func (g *UserGoals) UserID() core.UserID { return g.userID }

// DefineRootGoal records a new top-level goal. Root goals sit at the long-term
// timeframe.
func (g *UserGoals) DefineRootGoal(goalID GoalID, circle Circle, description string, tenantID core.TenantID) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	desc, err := normalizeDescription(description)
	if err != nil {
		return err
	}
	if _, ok := circles[circle]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCircle, circle)
	}
	if _, exists := g.goals[goalID]; exists {
		return fmt.Errorf("%w: %s", ErrGoalExists, goalID)
	}
	g.raise(GoalDefined{
		EventMeta:   es.NewEventMeta(tenantID, g.Version()+1),
		GoalID:      goalID,
		Circle:      circle,
		Timeframe:   TimeframeLongTerm,
		Description: desc,
	})
	return nil
}

// BreakdownGoal defines a child goal one timeframe level below its parent. The
// child inherits the parent's circle.
func (g *UserGoals) BreakdownGoal(newGoalID, parentGoalID GoalID, timeframe Timeframe, description string, tenantID core.TenantID) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	desc, err := normalizeDescription(description)
	if err != nil {
		return err
	}
	parent, ok := g.goals[parentGoalID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrGoalNotFound, parentGoalID)
	}
	if _, exists := g.goals[newGoalID]; exists {
		return fmt.Errorf("%w: %s", ErrGoalExists, newGoalID)
	}
	next, ok := parent.Timeframe.Next()
	if !ok || next != timeframe {
		return fmt.Errorf("%w: %s does not break down to %s", ErrInvalidBreakdown, parent.Timeframe, timeframe)
	}
	parentID := parentGoalID
	g.raise(GoalDefined{
		EventMeta:   es.NewEventMeta(tenantID, g.Version()+1),
		GoalID:      newGoalID,
		Circle:      parent.Circle,
		Timeframe:   timeframe,
		Description: desc,
		ParentID:    &parentID,
	})
	return nil
}

// SelectPriorityGoal marks a one-year goal as a priority. Selecting a goal that
// is already a priority is a no-op.
func (g *UserGoals) SelectPriorityGoal(goalID GoalID, tenantID core.TenantID) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	goal, ok := g.goals[goalID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	if goal.Timeframe != TimeframeOneYear {
		return fmt.Errorf("%w: %s is %s", ErrNotOneYearGoal, goalID, goal.Timeframe)
	}
	if _, already := g.priorityIDs[goalID]; already {
		return nil
	}
	if len(g.priorityIDs) >= MaxPriorityGoals {
		return fmt.Errorf("%w: %d", ErrPriorityLimit, MaxPriorityGoals)
	}
	g.raise(PriorityGoalSelected{
		EventMeta: es.NewEventMeta(tenantID, g.Version()+1),
		GoalID:    goalID,
	})
	return nil
}

// DeselectPriorityGoal removes a goal from the priority set. Deselecting a goal
// that is not a priority is a no-op.
func (g *UserGoals) DeselectPriorityGoal(goalID GoalID, tenantID core.TenantID) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	if _, ok := g.priorityIDs[goalID]; !ok {
		return nil
	}
	g.raise(PriorityGoalDeselected{
		EventMeta: es.NewEventMeta(tenantID, g.Version()+1),
		GoalID:    goalID,
	})
	return nil
}

// Goal returns the details of one goal.
func (g *UserGoals) Goal(goalID GoalID) (GoalDetails, bool) {
	d, ok := g.goals[goalID]
	return d, ok
}

// PriorityGoalIDs returns the current priority set.
func (g *UserGoals) PriorityGoalIDs() []GoalID {
	out := make([]GoalID, 0, len(g.priorityIDs))
	for id := range g.priorityIDs {
		out = append(out, id)
	}
	return out
}

// GoalCount returns how many goals are defined.
func (g *UserGoals) GoalCount() int { return len(g.goals) }

// LoadFromHistory replays a stored stream onto a blank instance.
func (g *UserGoals) LoadFromHistory(events []es.DomainEvent) error {
	return g.Replay(events, g.apply)
}

func (g *UserGoals) raise(e Event) {
	g.Raise(e, g.apply)
}

func (g *UserGoals) apply(e es.DomainEvent) {
	switch ev := e.(type) {
	case Initialized:
		g.initialized = true
	case GoalDefined:
		g.goals[ev.GoalID] = GoalDetails{
			ID:          ev.GoalID,
			Circle:      ev.Circle,
			Timeframe:   ev.Timeframe,
			Description: ev.Description,
			ParentID:    ev.ParentID,
		}
	case PriorityGoalSelected:
		g.priorityIDs[ev.GoalID] = struct{}{}
	case PriorityGoalDeselected:
		delete(g.priorityIDs, ev.GoalID)
	default:
		panic(fmt.Sprintf("goals: unhandled event %T", e))
	}
}

func normalizeDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDescription)
	}
	if len(s) > maxDescriptionLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidDescription, maxDescriptionLen)
	}
	return s, nil
}
