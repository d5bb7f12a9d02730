// catalog/cache.go

package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/norun9/rocketshoes-cart/cart"
)

type cacheItem struct {
	product   cart.ProductInfo
	expiresAt time.Time
}

// CachedCatalog keeps product metadata for ttl and collapses concurrent
// misses for the same product into one request. Stock is never cached.
type CachedCatalog struct {
	next  cart.ProductCatalog
	ttl   time.Duration
	group singleflight.Group

	mu    sync.RWMutex
	items map[int]cacheItem
	now   func() time.Time
}

// NewCachedCatalog wraps next with a TTL cache.
func NewCachedCatalog(next cart.ProductCatalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:  next,
		ttl:   ttl,
		items: make(map[int]cacheItem),
		now:   time.Now,
	}
}

// GetProduct serves from cache, fetching from the wrapped catalog on a miss.
func (c *CachedCatalog) GetProduct(ctx context.Context, productID int) (cart.ProductInfo, error) {
	if p, ok := c.lookup(productID); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(strconv.Itoa(productID), func() (interface{}, error) {
		if p, ok := c.lookup(productID); ok {
			return p, nil
		}
		p, err := c.next.GetProduct(ctx, productID)
		if err != nil {
			return cart.ProductInfo{}, err
		}
		c.store(productID, p)
		return p, nil
	})
	if err != nil {
		return cart.ProductInfo{}, err
	}
	return v.(cart.ProductInfo), nil
}

func (c *CachedCatalog) lookup(productID int) (cart.ProductInfo, bool) {
	c.mu.RLock()
	item, ok := c.items[productID]
	c.mu.RUnlock()
	if !ok {
		return cart.ProductInfo{}, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, productID)
		c.mu.Unlock()
		return cart.ProductInfo{}, false
	}
	return item.product, true
}

func (c *CachedCatalog) store(productID int, p cart.ProductInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[productID] = cacheItem{product: p, expiresAt: c.now().Add(c.ttl)}
}
