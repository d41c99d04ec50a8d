package session

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/store"
)

type savedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

// PersistentJar is an http.CookieJar whose cookies are mirrored into
// durable storage, keyed by origin, so a login outlives the process.
type PersistentJar struct {
	kv store.KV

	mu    sync.Mutex
	jar   *cookiejar.Jar
	saved map[string][]savedCookie
}

// NewPersistentJar creates a jar and replays cookies saved by an earlier
// process. Expired cookies are dropped.
func NewPersistentJar(ctx context.Context, kv store.KV) (*PersistentJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "session: cookie jar")
	}
	j := &PersistentJar{kv: kv, jar: jar, saved: map[string][]savedCookie{}}

	if _, err := store.GetJSON(ctx, kv, KeyCookies, &j.saved); err != nil {
		zap.L().Warn("session: discarding unreadable cookies", zap.Error(err))
		j.saved = map[string][]savedCookie{}
	}

	now := time.Now()
	for origin, list := range j.saved {
		u, err := url.Parse(origin)
		if err != nil {
			delete(j.saved, origin)
			continue
		}
		var live []*http.Cookie
		for _, sc := range list {
			if !sc.Expires.IsZero() && sc.Expires.Before(now) {
				continue
			}
			live = append(live, sc.cookie())
		}
		j.jar.SetCookies(u, live)
	}
	return j, nil
}

func (sc savedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Path:     sc.Path,
		Domain:   sc.Domain,
		Expires:  sc.Expires,
		Secure:   sc.Secure,
		HttpOnly: sc.HttpOnly,
	}
}

// SetCookies implements http.CookieJar.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := u.Scheme + "://" + u.Host
	list := j.saved[origin]
	for _, ck := range cookies {
		list = removeCookie(list, ck.Name)
		if ck.MaxAge < 0 || (!ck.Expires.IsZero() && ck.Expires.Before(time.Now())) {
			continue
		}
		expires := ck.Expires
		if ck.MaxAge > 0 {
			expires = time.Now().Add(time.Duration(ck.MaxAge) * time.Second)
		}
		list = append(list, savedCookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Domain:   ck.Domain,
			Expires:  expires,
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		})
	}
	if len(list) == 0 {
		delete(j.saved, origin)
	} else {
		j.saved[origin] = list
	}

	if err := store.SetJSON(context.Background(), j.kv, KeyCookies, j.saved); err != nil {
		zap.L().Warn("session: persist cookies", zap.Error(err))
	}
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie, in memory and on disk.
func (j *PersistentJar) Clear(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return eris.Wrap(err, "session: cookie jar")
	}
	j.mu.Lock()
	j.jar = jar
	j.saved = map[string][]savedCookie{}
	j.mu.Unlock()

	return eris.Wrap(j.kv.Delete(ctx, KeyCookies), "session: clear cookies")
}

func removeCookie(list []savedCookie, name string) []savedCookie {
	out := list[:0]
	for _, sc := range list {
		if sc.Name != name {
			out = append(out, sc)
		}
	}
	return out
}
