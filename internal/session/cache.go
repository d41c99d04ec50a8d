package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/store"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// Customers returns the workspace list, served from cache while it is
// younger than the TTL. force bypasses the cache.
func (c *Context) Customers(ctx context.Context, force bool) ([]model.Customer, error) {
	c.mu.Lock()
	if !force && c.customers != nil && c.now().Sub(c.customersAt) < c.customersTTL {
		out := append([]model.Customer(nil), c.customers...)
		c.mu.Unlock()
		return out, nil
	}
	c.customers = nil
	c.mu.Unlock()

	list, err := c.api.ListCustomers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "session: list customers")
	}
	if list == nil {
		list = []model.Customer{}
	}

	c.mu.Lock()
	c.customers = append([]model.Customer(nil), list...)
	c.customersAt = c.now()
	c.mu.Unlock()
	return list, nil
}

// InvalidateCustomers drops the cached customer list.
func (c *Context) InvalidateCustomers() {
	c.mu.Lock()
	c.customers = nil
	c.mu.Unlock()
}

// BasicInfo returns the server version and user identity. A fresh cached
// copy is served without a request; when the request fails, a stale copy
// is served instead. Session errors are never masked by stale data.
func (c *Context) BasicInfo(ctx context.Context, force bool) (*model.BasicInfo, error) {
	cached, at, ok := c.cachedBasicInfo(ctx)
	if ok && !force && c.now().Sub(at) < c.basicInfoTTL {
		return cached, nil
	}

	info, err := c.api.BasicInfo(ctx)
	if err != nil {
		if ok && !taxapi.IsSessionExpired(err) && !taxapi.IsUserNotFound(err) {
			zap.L().Warn("session: basic info fetch failed, serving stale copy",
				zap.Error(err), zap.Time("cached_at", at))
			return cached, nil
		}
		return nil, eris.Wrap(err, "session: basic info")
	}

	if err := store.SetJSON(ctx, c.sess, KeyBasicInfo, info); err != nil {
		zap.L().Warn("session: cache basic info", zap.Error(err))
	} else if err := c.sess.Set(ctx, KeyBasicInfoTimestamp, c.now().UTC().Format(time.RFC3339Nano)); err != nil {
		zap.L().Warn("session: cache basic info timestamp", zap.Error(err))
	}
	return info, nil
}

func (c *Context) cachedBasicInfo(ctx context.Context) (*model.BasicInfo, time.Time, bool) {
	raw, ok, err := c.sess.Get(ctx, KeyBasicInfoTimestamp)
	if err != nil || !ok {
		return nil, time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, time.Time{}, false
	}
	var info model.BasicInfo
	found, err := store.GetJSON(ctx, c.sess, KeyBasicInfo, &info)
	if err != nil || !found {
		return nil, time.Time{}, false
	}
	return &info, at, true
}

func (c *Context) clearBasicInfo(ctx context.Context) {
	for _, key := range []string{KeyBasicInfo, KeyBasicInfoTimestamp} {
		if err := c.sess.Delete(ctx, key); err != nil {
			zap.L().Warn("session: clear basic info", zap.String("key", key), zap.Error(err))
		}
	}
}
