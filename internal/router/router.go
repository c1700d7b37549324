// Package router decides which view a session may see and tracks the view
// currently shown.
package router

import (
	"slices"
	"sync"
)

type View int

const (
	Login View = iota
	Upload
	Dashboard
	History
)

// Landing is where an authenticated session goes by default.
const Landing = Upload

func (v View) String() string {
	switch v {
	case Login:
		return "login"
	case Upload:
		return "upload"
	case Dashboard:
		return "dashboard"
	case History:
		return "history"
	default:
		return "unknown"
	}
}

// Protected reports whether v requires an authenticated session.
func (v View) Protected() bool {
	return v != Login
}

// Session is the read side of the auth controller.
type Session interface {
	IsAuthenticated() bool
}

// Staged reports whether a dataset is waiting for the dashboard.
type Staged interface {
	Has() bool
}

// Guard maps a requested view to the one that may be shown right now.
// Resolve reads current state on every call; nothing is cached.
type Guard struct {
	Session Session
	Staging Staged
}

func (g Guard) Resolve(v View) View {
	authed := g.Session.IsAuthenticated()
	switch {
	case v.Protected() && !authed:
		return Login
	case v == Login && authed:
		return Landing
	case v == Dashboard && g.Staging != nil && !g.Staging.Has():
		return Upload
	default:
		return v
	}
}

// Navigator holds the current view and tells subscribers when it changes.
type Navigator struct {
	guard Guard

	mu        sync.Mutex
	current   View
	listeners []func(View)
}

// NewNavigator starts at whatever start resolves to under guard.
func NewNavigator(guard Guard, start View) *Navigator {
	return &Navigator{guard: guard, current: guard.Resolve(start)}
}

func (n *Navigator) Guard() Guard {
	return n.guard
}

func (n *Navigator) Current() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Navigate moves to v after applying the guard and returns the view
// actually entered.
func (n *Navigator) Navigate(v View) View {
	return n.set(n.guard.Resolve(v))
}

// Redirect moves to v without consulting the guard. Redirecting to the
// current view does nothing.
func (n *Navigator) Redirect(v View) {
	n.set(v)
}

func (n *Navigator) OnChange(fn func(View)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

func (n *Navigator) set(v View) View {
	n.mu.Lock()
	if n.current == v {
		n.mu.Unlock()
		return v
	}
	n.current = v
	listeners := slices.Clone(n.listeners)
	n.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
	return v
}
