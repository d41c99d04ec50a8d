package taxapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tax-intake/internal/model"
)

func (c *httpClient) SignInAnonymous(ctx context.Context) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/signInAnonymous", nil), nil); err != nil {
		return eris.Wrap(err, "taxapi: anonymous sign in")
	}
	return nil
}

func (c *httpClient) SignIn(ctx context.Context, creds Credentials) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/signIn", nil), creds); err != nil {
		return eris.Wrap(err, "taxapi: sign in")
	}
	return nil
}

func (c *httpClient) CreateAccount(ctx context.Context, creds Credentials) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/createAccount", nil), creds); err != nil {
		return eris.Wrap(err, "taxapi: create account")
	}
	return nil
}

func (c *httpClient) ConvertAnonymousAccount(ctx context.Context, creds Credentials) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/convertAnonymousAccount", nil), creds); err != nil {
		return eris.Wrap(err, "taxapi: convert anonymous account")
	}
	return nil
}

func (c *httpClient) SignOut(ctx context.Context) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/signOut", nil), nil); err != nil {
		return eris.Wrap(err, "taxapi: sign out")
	}
	return nil
}

func (c *httpClient) RequestPasswordReset(ctx context.Context, email string) error {
	payload := map[string]string{"email": email}
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/requestPasswordReset", nil), payload); err != nil {
		return eris.Wrap(err, "taxapi: request password reset")
	}
	return nil
}

func (c *httpClient) DeleteAccount(ctx context.Context) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, c.authURL("/deleteAccount", nil), nil); err != nil {
		return eris.Wrap(err, "taxapi: delete account")
	}
	return nil
}

func (c *httpClient) OAuthURL(ctx context.Context, redirectURI string) (string, error) {
	q := url.Values{"redirectUri": {redirectURI}}
	body, err := c.get(ctx, c.authURL("/oauth/google/login", q))
	if err != nil {
		return "", eris.Wrap(err, "taxapi: oauth login url")
	}
	resp, err := decode[struct {
		URL string `json:"url"`
	}](body, "oauth login url")
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpClient) OAuthCallback(ctx context.Context, code, state string) error {
	q := url.Values{"code": {code}, "state": {state}}
	if _, err := c.doJSON(ctx, http.MethodGet, c.authURL("/oauth/google/callback", q), nil); err != nil {
		return eris.Wrap(err, "taxapi: oauth callback")
	}
	return nil
}

func (c *httpClient) BasicInfo(ctx context.Context) (*model.BasicInfo, error) {
	body, err := c.get(ctx, c.authURL("/basicInfo", nil))
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: basic info")
	}
	info, err := decode[model.BasicInfo](body, "basic info")
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	body, err := c.get(ctx, c.authURL("/customers", nil))
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: list customers")
	}
	return decode[[]model.Customer](body, "customers")
}

type customerPair struct {
	From string `json:"fromCustomerDataEntryName"`
	To   string `json:"toCustomerDataEntryName"`
}

func (c *httpClient) RenameCustomer(ctx context.Context, from, to string) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/renameCustomer", nil), customerPair{From: from, To: to}); err != nil {
		return eris.Wrapf(err, "taxapi: rename customer %s", from)
	}
	return nil
}

func (c *httpClient) DuplicateCustomer(ctx context.Context, from, to string) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.authURL("/duplicateCustomer", nil), customerPair{From: from, To: to}); err != nil {
		return eris.Wrapf(err, "taxapi: duplicate customer %s", from)
	}
	return nil
}

func (c *httpClient) DeleteCustomer(ctx context.Context, name string) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, c.authURL("/deleteCustomer", customerQuery(name)), nil); err != nil {
		return eris.Wrapf(err, "taxapi: delete customer %s", name)
	}
	return nil
}
