package utilities

import (
	"errors"
	"fmt"
	"sync"
)

var (
	InvalidTransitionError = errors.New("invalid transition")
)

type State int

const (
	Init State = iota
)

// Rule allows a move from any of FromStates to ToState.
type Rule struct {
	FromStates []State
	ToState    State
}

type FiniteStateMachine interface {
	// Push moves to the given state if a rule allows it and returns the
	// state that was left.
	Push(to State) (State, error)
	Current() State
	Init()
}

type fsm struct {
	mtx          sync.Mutex
	rules        []Rule
	initialState State
	currentState State
}

func CreateFSM(initial State, data []Rule) FiniteStateMachine {
	return &fsm{
		rules:        data,
		initialState: initial,
		currentState: initial,
	}
}

func (s *fsm) Push(to State) (State, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	from := s.currentState
	if !s.allowed(from, to) {
		return from, fmt.Errorf("%w : %d -> %d", InvalidTransitionError, from, to)
	}
	s.currentState = to
	return from, nil
}

func (s *fsm) Current() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.currentState
}

func (s *fsm) Init() {
	s.mtx.Lock()
	s.currentState = s.initialState
	s.mtx.Unlock()
}

func (s *fsm) allowed(from, to State) bool {
	for _, rule := range s.rules {
		if rule.ToState == to && Contains(from, rule.FromStates) {
			return true
		}
	}
	return false
}
