// Package dialogue tracks where each user is in the conversation: which
// setup question is pending, whether a plan is under review, or whether a
// one-shot reply (question, lesson change, feedback) is expected.
package dialogue

import (
	"errors"
	"fmt"
)

// State is the closed set of dialogue states.
type State int

const (
	Idle State = iota
	AwaitingSkill
	AwaitingGoal
	AwaitingExperience
	AwaitingPreferences
	ReviewingPlan
	EditingPlan
	AwaitingCustomQuestion
	AwaitingChangeRequest
	AwaitingFeedback
)

// ErrInvalidTransition is returned for a move the transition table forbids.
var ErrInvalidTransition = errors.New("invalid dialogue transition")

var stateNames = [...]string{
	Idle:                   "idle",
	AwaitingSkill:          "awaiting_skill",
	AwaitingGoal:           "awaiting_goal",
	AwaitingExperience:     "awaiting_experience",
	AwaitingPreferences:    "awaiting_preferences",
	ReviewingPlan:          "reviewing_plan",
	EditingPlan:            "editing_plan",
	AwaitingCustomQuestion: "awaiting_custom_question",
	AwaitingChangeRequest:  "awaiting_change_request",
	AwaitingFeedback:       "awaiting_feedback",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= Idle && int(s) < len(stateNames)
}

// ParseState is the inverse of String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown dialogue state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown dialogue state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// transitions lists the moves allowed besides the universal ones: any state
// may return to Idle, and any state may begin a new setup at AwaitingSkill.
var transitions = map[State][]State{
	Idle:                {AwaitingCustomQuestion, AwaitingChangeRequest, AwaitingFeedback},
	AwaitingSkill:       {AwaitingGoal},
	AwaitingGoal:        {AwaitingExperience},
	AwaitingExperience:  {AwaitingPreferences},
	AwaitingPreferences: {ReviewingPlan},
	ReviewingPlan:       {EditingPlan},
	EditingPlan:         {ReviewingPlan},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == Idle || to == AwaitingSkill {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
