// Package authflow drives sign-in, sign-up, account and customer
// management on top of the session context. Input is validated before any
// backend call.
package authflow

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/session"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// DeleteConfirmation must be typed verbatim to delete an account.
const DeleteConfirmation = "delete my account"

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// MaxCustomerNameLength bounds customer names.
const MaxCustomerNameLength = 30

var (
	ErrInvalidEmail     = eris.New("authflow: a valid email address is required")
	ErrPasswordRequired = eris.New("authflow: password is required")
	ErrWeakPassword     = eris.Errorf("authflow: password must have at least %d characters", MinPasswordLength)
	ErrPasswordMismatch = eris.New("authflow: passwords do not match")
	ErrConfirmation     = eris.New("authflow: confirmation phrase does not match")
	ErrEmptyName        = eris.New("authflow: customer name is empty")
	ErrNameTooLong      = eris.Errorf("authflow: customer name is longer than %d characters", MaxCustomerNameLength)
	ErrDuplicateName    = eris.New("authflow: a customer with this name already exists")
	ErrUnknownCustomer  = eris.New("authflow: no such customer")
)

// API is the auth service surface used here.
type API interface {
	SignInAnonymous(ctx context.Context) error
	SignIn(ctx context.Context, creds taxapi.Credentials) error
	CreateAccount(ctx context.Context, creds taxapi.Credentials) error
	ConvertAnonymousAccount(ctx context.Context, creds taxapi.Credentials) error
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	DeleteAccount(ctx context.Context) error
	OAuthURL(ctx context.Context, redirectURI string) (string, error)
	OAuthCallback(ctx context.Context, code, state string) error
	RenameCustomer(ctx context.Context, from, to string) error
	DuplicateCustomer(ctx context.Context, from, to string) error
	DeleteCustomer(ctx context.Context, name string) error
}

// Flow runs the account and customer actions.
type Flow struct {
	api  API
	sess *session.Context
}

// New creates a Flow.
func New(api API, sess *session.Context) *Flow {
	return &Flow{api: api, sess: sess}
}

// Init checks for an existing login.
func (f *Flow) Init(ctx context.Context) error {
	return f.sess.Init(ctx)
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func credentials(email, password string) (taxapi.Credentials, error) {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return taxapi.Credentials{}, ErrInvalidEmail
	}
	if password == "" {
		return taxapi.Credentials{}, ErrPasswordRequired
	}
	return taxapi.Credentials{Email: email, Password: password}, nil
}

// Login signs in with email and password.
func (f *Flow) Login(ctx context.Context, email, password string) error {
	creds, err := credentials(email, password)
	if err != nil {
		return err
	}
	if err := f.api.SignIn(ctx, creds); err != nil {
		return eris.Wrap(err, "authflow: sign in")
	}
	f.sess.MarkSignedIn(ctx, creds.Email, false)
	return nil
}

// LoginAnonymous starts a guest session.
func (f *Flow) LoginAnonymous(ctx context.Context) error {
	if err := f.api.SignInAnonymous(ctx); err != nil {
		return eris.Wrap(err, "authflow: anonymous sign in")
	}
	f.sess.MarkSignedIn(ctx, "", true)
	return nil
}

// Signup creates an account. A guest session is converted in place so its
// documents are kept.
func (f *Flow) Signup(ctx context.Context, email, password, confirm string) error {
	creds, err := credentials(email, password)
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if password != confirm {
		return ErrPasswordMismatch
	}

	if f.sess.Anonymous() {
		if err := f.api.ConvertAnonymousAccount(ctx, creds); err != nil {
			return f.sess.Check(ctx, eris.Wrap(err, "authflow: convert anonymous account"))
		}
		zap.L().Info("authflow: anonymous account converted", zap.String("email", creds.Email))
	} else if err := f.api.CreateAccount(ctx, creds); err != nil {
		return eris.Wrap(err, "authflow: create account")
	}
	f.sess.MarkSignedIn(ctx, creds.Email, false)
	return nil
}

// SignOut ends the session. The local teardown happens even when the
// backend call fails.
func (f *Flow) SignOut(ctx context.Context) {
	err := f.api.SignOut(ctx)
	f.sess.SignOut(ctx)
	if err != nil && !taxapi.IsSessionExpired(err) && !taxapi.IsUserNotFound(err) {
		zap.L().Warn("authflow: backend sign out failed", zap.Error(err))
	}
}

// ResetPassword asks the backend to mail a reset link.
func (f *Flow) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	return eris.Wrap(f.api.RequestPasswordReset(ctx, email), "authflow: password reset")
}

// DeleteAccount removes the account once phrase matches
// DeleteConfirmation, then signs out locally.
func (f *Flow) DeleteAccount(ctx context.Context, phrase string) error {
	if !strings.EqualFold(strings.TrimSpace(phrase), DeleteConfirmation) {
		return ErrConfirmation
	}
	if err := f.api.DeleteAccount(ctx); err != nil {
		return f.sess.Check(ctx, eris.Wrap(err, "authflow: delete account"))
	}
	zap.L().Info("authflow: account deleted")
	f.sess.SignOut(ctx)
	return nil
}

// OAuthURL returns the provider URL to send the user to.
func (f *Flow) OAuthURL(ctx context.Context, redirectURI string) (string, error) {
	u, err := f.api.OAuthURL(ctx, redirectURI)
	if err != nil {
		return "", eris.Wrap(err, "authflow: oauth url")
	}
	return u, nil
}

// OAuthCallback completes a provider login and records the signed-in
// identity reported by the backend.
func (f *Flow) OAuthCallback(ctx context.Context, code, state string) error {
	if err := f.api.OAuthCallback(ctx, code, state); err != nil {
		return eris.Wrap(err, "authflow: oauth callback")
	}
	info, err := f.sess.BasicInfo(ctx, true)
	if err != nil {
		return f.sess.Check(ctx, eris.Wrap(err, "authflow: oauth identity"))
	}
	f.sess.MarkSignedIn(ctx, info.UserEmail, info.UserEmail == "")
	return nil
}

// AcceptTerms records the terms acceptance flag.
func (f *Flow) AcceptTerms(ctx context.Context, accepted bool) error {
	return f.sess.SetTermsAccepted(ctx, accepted)
}

// Customers lists the user's workspaces.
func (f *Flow) Customers(ctx context.Context, force bool) ([]model.Customer, error) {
	cs, err := f.sess.Customers(ctx, force)
	if err != nil {
		return nil, f.sess.Check(ctx, err)
	}
	return cs, nil
}

// SelectCustomer switches to an existing workspace.
func (f *Flow) SelectCustomer(ctx context.Context, name string) error {
	cs, err := f.Customers(ctx, false)
	if err != nil {
		return err
	}
	if !hasCustomer(cs, name) {
		return eris.Wrapf(ErrUnknownCustomer, "customer %q", name)
	}
	return f.sess.SelectCustomer(ctx, name)
}

func hasCustomer(cs []model.Customer, name string) bool {
	for _, c := range cs {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// checkNewName validates a target customer name against the current list.
func (f *Flow) checkNewName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxCustomerNameLength {
		return "", ErrNameTooLong
	}
	cs, err := f.Customers(ctx, false)
	if err != nil {
		return "", err
	}
	if hasCustomer(cs, name) {
		return "", eris.Wrapf(ErrDuplicateName, "customer %q", name)
	}
	return name, nil
}

// RenameCustomer renames from to to and follows the selection.
func (f *Flow) RenameCustomer(ctx context.Context, from, to string) error {
	to, err := f.checkNewName(ctx, to)
	if err != nil {
		return err
	}
	if err := f.api.RenameCustomer(ctx, from, to); err != nil {
		return f.sess.Check(ctx, eris.Wrap(err, "authflow: rename customer"))
	}
	zap.L().Info("authflow: customer renamed", zap.String("from", from), zap.String("to", to))
	return f.sess.CustomerRenamed(ctx, from, to)
}

// DuplicateCustomer copies from into a new workspace named to.
func (f *Flow) DuplicateCustomer(ctx context.Context, from, to string) error {
	to, err := f.checkNewName(ctx, to)
	if err != nil {
		return err
	}
	if err := f.api.DuplicateCustomer(ctx, from, to); err != nil {
		return f.sess.Check(ctx, eris.Wrap(err, "authflow: duplicate customer"))
	}
	f.sess.InvalidateCustomers()
	zap.L().Info("authflow: customer duplicated", zap.String("from", from), zap.String("to", to))
	return nil
}

// DeleteCustomer removes a workspace and drops it from the selection.
func (f *Flow) DeleteCustomer(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if err := f.api.DeleteCustomer(ctx, name); err != nil {
		return f.sess.Check(ctx, eris.Wrap(err, "authflow: delete customer"))
	}
	zap.L().Info("authflow: customer deleted", zap.String("customer", name))
	return f.sess.CustomerDeleted(ctx, name)
}
