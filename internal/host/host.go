// Package host defines the narrow contract between the controller and the
// shell that activates it, plus a terminal implementation for the CLI.
package host

import (
	"fmt"
	"io"
	"slices"
	"sync"
)

// Host is the part of the embedding shell the controller talks to.
type Host interface {
	// RegisterModule registers shutdown to run when the shell exits.
	RegisterModule(name string, shutdown func())
	// AddMenuAction adds a menu entry at path, in group, running action.
	AddMenuAction(path, group string, action func())
	// Message shows a short message to the user.
	Message(text string)
}

// MenuAction is a registered menu entry.
type MenuAction struct {
	Path   string
	Group  string
	Action func()
}

// Console is a Host that prints messages to a writer and keeps registered
// modules and menu actions so the CLI can run them.
type Console struct {
	w io.Writer

	mu      sync.Mutex
	modules []string
	hooks   map[string]func()
	actions []MenuAction
}

var _ Host = (*Console)(nil)

// NewConsole returns a Console writing messages to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, hooks: make(map[string]func())}
}

// RegisterModule records a shutdown hook. Registering a name twice replaces
// the earlier hook.
func (c *Console) RegisterModule(name string, shutdown func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hooks[name]; !ok {
		c.modules = append(c.modules, name)
	}
	c.hooks[name] = shutdown
}

// AddMenuAction records action under path. Invoke runs it.
func (c *Console) AddMenuAction(path, group string, action func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, MenuAction{Path: path, Group: group, Action: action})
}

// Message writes text to the console on its own line.
func (c *Console) Message(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, text)
}

// Modules returns registered module names in registration order.
func (c *Console) Modules() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.modules)
}

// Actions returns registered menu actions in registration order.
func (c *Console) Actions() []MenuAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.actions)
}

// Invoke runs the first menu action registered at path and reports whether
// one was found.
func (c *Console) Invoke(path string) bool {
	c.mu.Lock()
	var action func()
	for _, a := range c.actions {
		if a.Path == path {
			action = a.Action
			break
		}
	}
	c.mu.Unlock()

	if action == nil {
		return false
	}
	action()
	return true
}

// Shutdown runs every registered shutdown hook once, newest first, and
// forgets them.
func (c *Console) Shutdown() {
	c.mu.Lock()
	names := c.modules
	hooks := c.hooks
	c.modules = nil
	c.hooks = make(map[string]func())
	c.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		if fn := hooks[names[i]]; fn != nil {
			fn()
		}
	}
}
