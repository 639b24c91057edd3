// Package challenge holds an outstanding bot-check puzzle between the
// response that issued it and the login attempt that answers it.
package challenge

import "sync"

// State is scoped to one client session; it is never written to disk.
type State struct {
	mu       sync.RWMutex
	question string
	answer   string
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// Arm records a new question and drops any answer to the previous one.
func (s *State) Arm(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = question
	s.answer = ""
}

func (s *State) Question() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.question
}

func (s *State) Armed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.question != ""
}

// SetAnswer stores the user's answer for the next login attempt.
func (s *State) SetAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = answer
}

// Answer returns the stored answer and whether one is present.
func (s *State) Answer() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answer, s.answer != ""
}

func (s *State) ClearAnswer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = ""
}

// Clear forgets both question and answer.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = ""
	s.answer = ""
}
