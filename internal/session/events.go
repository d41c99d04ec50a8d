package session

// EventKind names a session state transition.
type EventKind int

const (
	// SignInChanged fires on sign-in, sign-out and session expiry.
	SignInChanged EventKind = iota + 1
	// CustomerChanged fires when the selected workspace changes.
	CustomerChanged
	// TermsChanged fires when the terms-acceptance flag changes.
	TermsChanged
	// AuthInitialized fires once the startup sign-in check finished.
	AuthInitialized
)

func (k EventKind) String() string {
	switch k {
	case SignInChanged:
		return "sign_in_changed"
	case CustomerChanged:
		return "customer_changed"
	case TermsChanged:
		return "terms_changed"
	case AuthInitialized:
		return "auth_initialized"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Fields not relevant to Kind are zero.
type Event struct {
	Kind          EventKind
	SignedIn      bool
	Email         string
	Anonymous     bool
	Customer      string
	TermsAccepted bool
}

// Listener receives session events synchronously, in subscription order.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function that removes it.
func (c *Context) Subscribe(l Listener) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, fn: l})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// emit must be called without c.mu held.
func (c *Context) emit(ev Event) {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
