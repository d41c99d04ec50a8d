// Package session holds the signed-in user, the selected workspace and the
// caches tied to them. A single Context is created at startup and passed
// to every component that needs it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/store"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// Durable storage keys.
const (
	KeySelectedCustomer = "selectedCustomer"
	KeyTermsAccepted    = "termsAccepted"
	KeyFormTypeCounts   = "formTypeCounts"
	KeyCookies          = "cookies"
)

// Session storage keys.
const (
	KeyEditableView       = "editableView"
	KeyBasicInfo          = "basicInfo"
	KeyBasicInfoTimestamp = "basicInfoTimestamp"
)

// Default cache lifetimes.
const (
	DefaultCustomersTTL = time.Hour
	DefaultBasicInfoTTL = 10 * time.Minute
)

// API is the subset of the auth service the session caches read from.
type API interface {
	BasicInfo(ctx context.Context) (*model.BasicInfo, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
}

// Option configures a Context.
type Option func(*Context)

// WithCustomersTTL sets the customer list cache lifetime.
func WithCustomersTTL(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.customersTTL = d
		}
	}
}

// WithBasicInfoTTL sets the basic-info cache lifetime.
func WithBasicInfoTTL(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.basicInfoTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// WithJar attaches the cookie jar cleared on sign-out.
func WithJar(j *PersistentJar) Option {
	return func(c *Context) {
		c.jar = j
	}
}

// Context is the explicit session state. Mutation happens only through its
// methods; each transition notifies subscribers after the lock is released.
type Context struct {
	durable store.KV
	sess    store.KV
	api     API
	jar     *PersistentJar

	customersTTL time.Duration
	basicInfoTTL time.Duration
	now          func() time.Time

	mu        sync.Mutex
	signedIn  bool
	email     string
	anonymous bool

	customers   []model.Customer
	customersAt time.Time

	subs      []subscription
	nextSubID int
}

// New creates a session context. durable survives restarts; sess lives
// for one session.
func New(durable, sess store.KV, api API, opts ...Option) *Context {
	c := &Context{
		durable:      durable,
		sess:         sess,
		api:          api,
		customersTTL: DefaultCustomersTTL,
		basicInfoTTL: DefaultBasicInfoTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignedIn reports the current sign-in state.
func (c *Context) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn
}

// Email returns the signed-in user's email; empty for anonymous users.
func (c *Context) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

// Anonymous reports whether the signed-in account is anonymous.
func (c *Context) Anonymous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn && c.anonymous
}

// Init checks the backend for an existing login and emits AuthInitialized.
// Anonymous accounts report an empty email. Session errors leave the
// context signed out; other errors are returned after the event fires.
func (c *Context) Init(ctx context.Context) error {
	info, err := c.BasicInfo(ctx, true)
	if err == nil {
		c.setSignedIn(ctx, info.UserEmail, info.UserEmail == "", false)
	} else if taxapi.IsSessionExpired(err) || taxapi.IsUserNotFound(err) {
		err = nil
	}

	c.mu.Lock()
	ev := Event{Kind: AuthInitialized, SignedIn: c.signedIn, Email: c.email, Anonymous: c.anonymous}
	c.mu.Unlock()
	c.emit(ev)

	if err != nil {
		return eris.Wrap(err, "session: init")
	}
	return nil
}

// MarkSignedIn records a successful sign-in and notifies subscribers.
func (c *Context) MarkSignedIn(ctx context.Context, email string, anonymous bool) {
	c.setSignedIn(ctx, email, anonymous, true)
}

func (c *Context) setSignedIn(ctx context.Context, email string, anonymous, notify bool) {
	c.mu.Lock()
	changed := !c.signedIn || c.email != email || c.anonymous != anonymous
	c.signedIn = true
	c.email = email
	c.anonymous = anonymous
	if changed {
		c.customers = nil
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	if notify {
		c.clearBasicInfo(ctx)
	}
	zap.L().Info("session: signed in", zap.String("email", email), zap.Bool("anonymous", anonymous))
	if notify {
		c.emit(Event{Kind: SignInChanged, SignedIn: true, Email: email, Anonymous: anonymous})
	}
}

// SignOut tears down the local session: caches, selected customer and
// cookies. It does not call the backend.
func (c *Context) SignOut(ctx context.Context) {
	c.mu.Lock()
	was := c.signedIn
	c.signedIn = false
	c.email = ""
	c.anonymous = false
	c.customers = nil
	c.mu.Unlock()

	c.clearBasicInfo(ctx)
	if err := c.durable.Delete(ctx, KeySelectedCustomer); err != nil {
		zap.L().Warn("session: clear selected customer", zap.Error(err))
	}
	if c.jar != nil {
		if err := c.jar.Clear(ctx); err != nil {
			zap.L().Warn("session: clear cookies", zap.Error(err))
		}
	}

	if was {
		zap.L().Info("session: signed out")
		c.emit(Event{Kind: SignInChanged})
	}
}

// SelectedCustomer returns the persisted workspace name.
func (c *Context) SelectedCustomer(ctx context.Context) (string, error) {
	v, _, err := c.durable.Get(ctx, KeySelectedCustomer)
	if err != nil {
		return "", eris.Wrap(err, "session: selected customer")
	}
	return v, nil
}

// SelectCustomer persists name and, when it differs from the current
// selection, emits CustomerChanged.
func (c *Context) SelectCustomer(ctx context.Context, name string) error {
	cur, err := c.SelectedCustomer(ctx)
	if err != nil {
		return err
	}
	if cur == name {
		return nil
	}
	if name == "" {
		err = c.durable.Delete(ctx, KeySelectedCustomer)
	} else {
		err = c.durable.Set(ctx, KeySelectedCustomer, name)
	}
	if err != nil {
		return eris.Wrap(err, "session: select customer")
	}

	zap.L().Info("session: customer selected", zap.String("customer", name))
	c.emit(Event{Kind: CustomerChanged, Customer: name})
	return nil
}

// CustomerRenamed invalidates the customer list and follows the rename
// when the renamed workspace is selected.
func (c *Context) CustomerRenamed(ctx context.Context, from, to string) error {
	c.InvalidateCustomers()
	cur, err := c.SelectedCustomer(ctx)
	if err != nil {
		return err
	}
	if cur != from {
		return nil
	}
	return c.SelectCustomer(ctx, to)
}

// CustomerDeleted invalidates the customer list and drops the selection
// when it pointed at name.
func (c *Context) CustomerDeleted(ctx context.Context, name string) error {
	c.InvalidateCustomers()
	cur, err := c.SelectedCustomer(ctx)
	if err != nil {
		return err
	}
	if cur != name {
		return nil
	}
	return c.SelectCustomer(ctx, "")
}
