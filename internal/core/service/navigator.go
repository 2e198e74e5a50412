package service

import (
	"sync"

	"github.com/mmsocial/mmclient/internal/core/domain"
)

// Navigator is a back stack of views. It stands in for the UI router:
// the CLI renders whatever view ends up on top.
type Navigator struct {
	mu      sync.Mutex
	stack   []domain.View
	visited []domain.View
}

// NewNavigator creates an empty navigator.
func NewNavigator() *Navigator {
	return &Navigator{}
}

// Push shows v on top of the current history.
func (n *Navigator) Push(v domain.View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stack = append(n.stack, v)
	n.visited = append(n.visited, v)
}

// ResetTo shows v and drops all history below it.
func (n *Navigator) ResetTo(v domain.View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stack = append(n.stack[:0], v)
	n.visited = append(n.visited, v)
}

// Back pops the top view. It returns the view now on top and false when
// there is nothing to go back to.
func (n *Navigator) Back() (domain.View, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.stack) < 2 {
		return n.top(), false
	}
	n.stack = n.stack[:len(n.stack)-1]
	return n.top(), true
}

// Current returns the view on top, or "" when nothing was shown yet.
func (n *Navigator) Current() domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.top()
}

// History returns the back stack, bottom first.
func (n *Navigator) History() []domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.View(nil), n.stack...)
}

// Visited returns every view ever shown, in order.
func (n *Navigator) Visited() []domain.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.View(nil), n.visited...)
}

func (n *Navigator) top() domain.View {
	if len(n.stack) == 0 {
		return ""
	}
	return n.stack[len(n.stack)-1]
}
