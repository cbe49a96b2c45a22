package editor

import "sync"

// Canvas is the server-side mirror of the visual editor's displayed state
type Canvas struct {
	mu     sync.RWMutex
	state  State
	loaded bool
}

// Load replaces everything on the canvas with the contents of doc
func (c *Canvas) Load(doc Document) error {
	state, err := Parse(doc)
	if err != nil {
		return err
	}
	c.Apply(state)
	return nil
}

// Apply records a change reported by the browser editor
func (c *Canvas) Apply(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = cloneState(state)
	c.loaded = true
}

func (c *Canvas) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneState(c.state)
}

func (c *Canvas) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func cloneState(s State) State {
	if s.Scripts != nil {
		s.Scripts = append([]string(nil), s.Scripts...)
	}
	return s
}
