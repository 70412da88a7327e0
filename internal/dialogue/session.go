package dialogue

import (
	"fmt"
	"slices"
	"time"
)

// maxSuggestionSets bounds how many displayed suggestion lists a session keeps.
const maxSuggestionSets = 5

// Scratch accumulates setup answers until the plan is approved.
type Scratch struct {
	Skill       string   `json:"skill,omitempty"`
	Goal        string   `json:"goal,omitempty"`
	Experience  string   `json:"experience,omitempty"`
	Preferences string   `json:"preferences,omitempty"`
	Plan        []string `json:"plan,omitempty"`
}

// SuggestionSet is a suggestion list exactly as it was shown to the user.
type SuggestionSet struct {
	Token string   `json:"token"`
	Items []string `json:"items"`
}

// Session is one user's dialogue position.
type Session struct {
	UserID      string          `json:"user_id"`
	State       State           `json:"state"`
	Scratch     Scratch         `json:"scratch"`
	Suggestions []SuggestionSet `json:"suggestions,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewSession returns an Idle session for userID.
func NewSession(userID string) *Session {
	return &Session{UserID: userID, State: Idle}
}

// Transition moves to the given state if the transition table allows it.
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// Begin starts a fresh setup: AwaitingSkill with empty scratch and no
// remembered suggestions.
func (s *Session) Begin() {
	s.State = AwaitingSkill
	s.Scratch = Scratch{}
	s.Suggestions = nil
}

// Reset returns to Idle and drops partially collected setup answers.
func (s *Session) Reset() {
	s.State = Idle
	s.Scratch = Scratch{}
}

// InSetup reports whether the user is answering setup questions or
// reviewing a plan.
func (s *Session) InSetup() bool {
	switch s.State {
	case AwaitingSkill, AwaitingGoal, AwaitingExperience, AwaitingPreferences, ReviewingPlan, EditingPlan:
		return true
	}
	return false
}

// RememberSuggestions stores a displayed list under token, keeping only the
// most recent few.
func (s *Session) RememberSuggestions(token string, items []string) {
	s.Suggestions = append(s.Suggestions, SuggestionSet{Token: token, Items: slices.Clone(items)})
	if n := len(s.Suggestions); n > maxSuggestionSets {
		s.Suggestions = slices.Clone(s.Suggestions[n-maxSuggestionSets:])
	}
}

// LookupSuggestions returns the list shown under token.
func (s *Session) LookupSuggestions(token string) ([]string, bool) {
	for _, set := range s.Suggestions {
		if set.Token == token {
			return slices.Clone(set.Items), true
		}
	}
	return nil, false
}

// ForgetSuggestions drops every remembered list.
func (s *Session) ForgetSuggestions() {
	s.Suggestions = nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Scratch.Plan = slices.Clone(s.Scratch.Plan)
	c.Suggestions = make([]SuggestionSet, len(s.Suggestions))
	for i, set := range s.Suggestions {
		c.Suggestions[i] = SuggestionSet{Token: set.Token, Items: slices.Clone(set.Items)}
	}
	if s.Suggestions == nil {
		c.Suggestions = nil
	}
	return &c
}
