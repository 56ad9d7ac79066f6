package handoff

import "sync"

// ErrorChannel carries at most one error message from the producer to its
// owner. The first Put wins; Take hands the message over exactly once.
type ErrorChannel struct {
	mu    sync.Mutex
	msg   string
	set   bool
	taken bool
}

// NewErrorChannel returns an empty ErrorChannel.
func NewErrorChannel() *ErrorChannel {
	return &ErrorChannel{}
}

// Put stores msg if nothing has been stored yet. It reports whether msg was kept.
func (c *ErrorChannel) Put(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return false
	}
	c.msg, c.set = msg, true
	return true
}

// Take returns the stored message and false on every call after the first
// successful one, or when nothing was stored.
func (c *ErrorChannel) Take() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || c.taken {
		return "", false
	}
	c.taken = true
	msg := c.msg
	c.msg = ""
	return msg, true
}
