package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/store"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) BasicInfo(ctx context.Context) (*model.BasicInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BasicInfo), args.Error(1)
}

func (m *mockAPI) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Customer), args.Error(1)
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestContext(t *testing.T, api API, opts ...Option) (*Context, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(store.NewMemory(), store.NewMemory(), api, opts...), clock
}

func recordEvents(c *Context) *[]Event {
	var got []Event
	c.Subscribe(func(ev Event) { got = append(got, ev) })
	return &got
}

func jwtErr() error {
	return &taxapi.APIError{StatusCode: 401, Detail: "JWT expired"}
}

func TestInit_SignedIn(t *testing.T) {
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(&model.BasicInfo{ProductVersion: "3.1", UserEmail: "dana@example.com"}, nil)

	c, _ := newTestContext(t, api)
	events := recordEvents(c)

	require.NoError(t, c.Init(context.Background()))
	assert.True(t, c.SignedIn())
	assert.False(t, c.Anonymous())
	assert.Equal(t, "dana@example.com", c.Email())

	require.Len(t, *events, 1)
	assert.Equal(t, AuthInitialized, (*events)[0].Kind)
	assert.True(t, (*events)[0].SignedIn)
}

func TestInit_AnonymousHasEmptyEmail(t *testing.T) {
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(&model.BasicInfo{ProductVersion: "3.1"}, nil)

	c, _ := newTestContext(t, api)
	require.NoError(t, c.Init(context.Background()))
	assert.True(t, c.Anonymous())
}

func TestInit_ExpiredSessionIsSignedOut(t *testing.T) {
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(nil, jwtErr())

	c, _ := newTestContext(t, api)
	events := recordEvents(c)

	require.NoError(t, c.Init(context.Background()))
	assert.False(t, c.SignedIn())
	require.Len(t, *events, 1)
	assert.Equal(t, AuthInitialized, (*events)[0].Kind)
}

func TestInit_NetworkErrorReturned(t *testing.T) {
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	c, _ := newTestContext(t, api)
	events := recordEvents(c)

	assert.Error(t, c.Init(context.Background()))
	require.Len(t, *events, 1)
}

func TestSignInAndOut_EmitAndClear(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("ListCustomers", mock.Anything).Return([]model.Customer{{Name: "Dana"}}, nil)

	c, _ := newTestContext(t, api)
	events := recordEvents(c)

	c.MarkSignedIn(ctx, "dana@example.com", false)
	require.NoError(t, c.SelectCustomer(ctx, "Dana"))
	_, err := c.Customers(ctx, false)
	require.NoError(t, err)
	require.NoError(t, c.sess.Set(ctx, KeyBasicInfo, `{"productVersion":"1"}`))

	c.SignOut(ctx)

	assert.False(t, c.SignedIn())
	assert.Empty(t, c.Email())
	sel, err := c.SelectedCustomer(ctx)
	require.NoError(t, err)
	assert.Empty(t, sel)
	_, ok, _ := c.sess.Get(ctx, KeyBasicInfo)
	assert.False(t, ok)

	kinds := make([]EventKind, 0, len(*events))
	for _, ev := range *events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{SignInChanged, CustomerChanged, SignInChanged}, kinds)
	assert.False(t, (*events)[2].SignedIn)

	// Customer cache is gone: the next call fetches again.
	_, err = c.Customers(ctx, false)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "ListCustomers", 2)
}

func TestSignOut_WhenSignedOutIsSilent(t *testing.T) {
	c, _ := newTestContext(t, &mockAPI{})
	events := recordEvents(c)
	c.SignOut(context.Background())
	assert.Empty(t, *events)
}

func TestSelectCustomer_SameNameNoEvent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, &mockAPI{})
	events := recordEvents(c)

	require.NoError(t, c.SelectCustomer(ctx, "Dana"))
	require.NoError(t, c.SelectCustomer(ctx, "Dana"))
	require.Len(t, *events, 1)
	assert.Equal(t, "Dana", (*events)[0].Customer)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, &mockAPI{})

	var n int
	unsub := c.Subscribe(func(Event) { n++ })
	require.NoError(t, c.SelectCustomer(ctx, "A"))
	unsub()
	require.NoError(t, c.SelectCustomer(ctx, "B"))
	assert.Equal(t, 1, n)
}

func TestCustomers_TTL(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("ListCustomers", mock.Anything).Return([]model.Customer{{Name: "Dana"}}, nil)

	c, clock := newTestContext(t, api)

	for i := 0; i < 3; i++ {
		list, err := c.Customers(ctx, false)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	api.AssertNumberOfCalls(t, "ListCustomers", 1)

	clock.advance(59 * time.Minute)
	_, _ = c.Customers(ctx, false)
	api.AssertNumberOfCalls(t, "ListCustomers", 1)

	clock.advance(2 * time.Minute)
	_, _ = c.Customers(ctx, false)
	api.AssertNumberOfCalls(t, "ListCustomers", 2)

	_, _ = c.Customers(ctx, true)
	api.AssertNumberOfCalls(t, "ListCustomers", 3)
}

func TestCustomers_ExpiredCacheNotTrustedOnFailure(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("ListCustomers", mock.Anything).Return([]model.Customer{{Name: "Dana"}}, nil).Once()
	api.On("ListCustomers", mock.Anything).Return(nil, errors.New("boom")).Once()

	c, clock := newTestContext(t, api)
	_, err := c.Customers(ctx, false)
	require.NoError(t, err)

	clock.advance(2 * time.Hour)
	_, err = c.Customers(ctx, false)
	assert.Error(t, err)
}

func TestCustomerRenamed_FollowsSelection(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("ListCustomers", mock.Anything).Return([]model.Customer{{Name: "Dana"}}, nil)

	c, _ := newTestContext(t, api)
	require.NoError(t, c.SelectCustomer(ctx, "Dana"))
	_, _ = c.Customers(ctx, false)

	require.NoError(t, c.CustomerRenamed(ctx, "Dana", "Dana 2024"))
	sel, _ := c.SelectedCustomer(ctx)
	assert.Equal(t, "Dana 2024", sel)

	_, _ = c.Customers(ctx, false)
	api.AssertNumberOfCalls(t, "ListCustomers", 2)
}

func TestCustomerDeleted_ClearsSelection(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, &mockAPI{})
	require.NoError(t, c.SelectCustomer(ctx, "Dana"))
	events := recordEvents(c)

	require.NoError(t, c.CustomerDeleted(ctx, "Other"))
	assert.Empty(t, *events)

	require.NoError(t, c.CustomerDeleted(ctx, "Dana"))
	sel, _ := c.SelectedCustomer(ctx)
	assert.Empty(t, sel)
	require.Len(t, *events, 1)
	assert.Equal(t, CustomerChanged, (*events)[0].Kind)
}

func TestBasicInfo_CacheAndStaleFallback(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(&model.BasicInfo{ProductVersion: "3.1"}, nil).Once()
	api.On("BasicInfo", mock.Anything).Return(nil, errors.New("boom")).Once()

	c, clock := newTestContext(t, api)

	info, err := c.BasicInfo(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "3.1", info.ProductVersion)

	clock.advance(5 * time.Minute)
	_, err = c.BasicInfo(ctx, false)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "BasicInfo", 1)

	clock.advance(6 * time.Minute)
	info, err = c.BasicInfo(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "3.1", info.ProductVersion)
	api.AssertNumberOfCalls(t, "BasicInfo", 2)
}

func TestBasicInfo_SessionErrorNotMasked(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(&model.BasicInfo{ProductVersion: "3.1"}, nil).Once()
	api.On("BasicInfo", mock.Anything).Return(nil, jwtErr()).Once()

	c, _ := newTestContext(t, api)
	_, err := c.BasicInfo(ctx, false)
	require.NoError(t, err)

	_, err = c.BasicInfo(ctx, true)
	assert.True(t, taxapi.IsSessionExpired(err))
}

func TestBasicInfo_NoCacheFailure(t *testing.T) {
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(nil, errors.New("boom"))

	c, _ := newTestContext(t, api)
	_, err := c.BasicInfo(context.Background(), false)
	assert.Error(t, err)
}

func TestBasicInfo_ClearedOnSignIn(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("BasicInfo", mock.Anything).Return(&model.BasicInfo{ProductVersion: "3.1"}, nil)

	c, _ := newTestContext(t, api)
	_, err := c.BasicInfo(ctx, false)
	require.NoError(t, err)

	c.MarkSignedIn(ctx, "dana@example.com", false)
	_, err = c.BasicInfo(ctx, false)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "BasicInfo", 2)
}

func TestHandleError(t *testing.T) {
	ctx := context.Background()

	t.Run("jwt", func(t *testing.T) {
		c, _ := newTestContext(t, &mockAPI{})
		c.MarkSignedIn(ctx, "dana@example.com", false)

		n, ok := c.HandleError(ctx, jwtErr())
		require.True(t, ok)
		assert.Equal(t, NoticeSessionExpired, n.Kind)
		assert.NotEmpty(t, n.Message)
		assert.False(t, c.SignedIn())
	})

	t.Run("anonymous user not found", func(t *testing.T) {
		c, _ := newTestContext(t, &mockAPI{})
		c.MarkSignedIn(ctx, "", true)

		n, ok := c.HandleError(ctx, &taxapi.APIError{StatusCode: 404, Detail: "User not found"})
		require.True(t, ok)
		assert.Equal(t, NoticeAnonymousExpired, n.Kind)
		assert.False(t, c.SignedIn())
	})

	t.Run("registered user not found", func(t *testing.T) {
		c, _ := newTestContext(t, &mockAPI{})
		c.MarkSignedIn(ctx, "dana@example.com", false)

		n, ok := c.HandleError(ctx, &taxapi.APIError{StatusCode: 404, Detail: "User not found"})
		require.True(t, ok)
		assert.Equal(t, NoticeSessionExpired, n.Kind)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		c, _ := newTestContext(t, &mockAPI{})
		c.MarkSignedIn(ctx, "dana@example.com", false)

		_, ok := c.HandleError(ctx, &taxapi.APIError{StatusCode: 500, Detail: "boom"})
		assert.False(t, ok)
		assert.True(t, c.SignedIn())

		_, ok = c.HandleError(ctx, nil)
		assert.False(t, ok)
	})
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, &mockAPI{})
	c.MarkSignedIn(ctx, "dana@example.com", false)

	plain := errors.New("disk full")
	assert.Same(t, plain, c.Check(ctx, plain))
	assert.True(t, c.SignedIn())

	err := c.Check(ctx, jwtErr())
	ended, ok := AsEnded(err)
	require.True(t, ok)
	assert.Equal(t, NoticeSessionExpired, ended.Notice.Kind)
	assert.True(t, taxapi.IsSessionExpired(err))
	assert.False(t, c.SignedIn())
}

func TestPrefs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestContext(t, &mockAPI{})
	events := recordEvents(c)

	assert.False(t, c.TermsAccepted(ctx))
	require.NoError(t, c.SetTermsAccepted(ctx, true))
	require.NoError(t, c.SetTermsAccepted(ctx, true))
	assert.True(t, c.TermsAccepted(ctx))
	require.Len(t, *events, 1)
	assert.Equal(t, TermsChanged, (*events)[0].Kind)

	assert.True(t, c.EditableView(ctx))
	require.NoError(t, c.SetEditableView(ctx, false))
	assert.False(t, c.EditableView(ctx))

	require.NoError(t, c.RecordFormType(ctx, "FORM_106"))
	require.NoError(t, c.RecordFormType(ctx, "FORM_106"))
	require.NoError(t, c.RecordFormType(ctx, "CHILDREN"))
	counts, err := c.FormTypeCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"FORM_106": 2, "CHILDREN": 1}, counts)
}

func TestPersistentJar_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	u, _ := url.Parse("https://auth.example.com/signIn")

	j1, err := NewPersistentJar(ctx, kv)
	require.NoError(t, err)
	j1.SetCookies(u, []*http.Cookie{
		{Name: "session", Value: "abc", Path: "/"},
		{Name: "old", Value: "x", Path: "/", Expires: time.Now().Add(-time.Hour)},
	})

	j2, err := NewPersistentJar(ctx, kv)
	require.NoError(t, err)
	got := j2.Cookies(u)
	require.Len(t, got, 1)
	assert.Equal(t, "session", got[0].Name)
	assert.Equal(t, "abc", got[0].Value)

	// Deletion via MaxAge<0 is persisted too.
	j2.SetCookies(u, []*http.Cookie{{Name: "session", Value: "", Path: "/", MaxAge: -1}})
	j3, err := NewPersistentJar(ctx, kv)
	require.NoError(t, err)
	assert.Empty(t, j3.Cookies(u))
}

func TestSignOut_ClearsJar(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	u, _ := url.Parse("https://auth.example.com/")

	jar, err := NewPersistentJar(ctx, kv)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}})

	c := New(kv, store.NewMemory(), &mockAPI{}, WithJar(jar))
	c.MarkSignedIn(ctx, "dana@example.com", false)
	c.SignOut(ctx)

	assert.Empty(t, jar.Cookies(u))
	_, ok, _ := kv.Get(ctx, KeyCookies)
	assert.False(t, ok)
}
