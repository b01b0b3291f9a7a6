// Package hub reports whether the house is calling for heat and, where
// available, the outside temperature forecast.
package hub

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNoState      = errors.New("no heating state recorded")
	ErrUnexpected   = errors.New("unexpected hub response")
	ErrMissingURL   = errors.New("hub url is required")
	ErrInvalidValue = errors.New("invalid heating state value")
)

// State is one hub observation.
type State struct {
	HeatingOn bool
	// Forecast is the outside temperature forecast, nil when unknown.
	Forecast *float64
}

type Source interface {
	State(ctx context.Context) (State, error)
}

// Static always reports the same state.
type Static struct {
	mu  sync.Mutex
	s   State
	err error
}

func NewStatic(s State) *Static { return &Static{s: s} }

func (st *Static) State(context.Context) (State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.err != nil {
		return State{}, st.err
	}
	return st.s, nil
}

func (st *Static) Set(s State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = s
}

// Fail makes subsequent calls return err; nil restores normal calls.
func (st *Static) Fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.err = err
}
