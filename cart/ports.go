// cart/ports.go

package cart

import (
	"context"

	"github.com/pkg/errors"
)

// ErrCorrupt is the cause of Storage.GetCart errors for a stored cart that
// exists but cannot be decoded. Any other GetCart error is transient.
var ErrCorrupt = errors.New("stored cart is corrupt")

// StockOracle answers how many units of a product can be bought right now.
type StockOracle interface {
	GetStock(ctx context.Context, productID int) (StockEntry, error)
}

// ProductCatalog answers product metadata lookups.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int) (ProductInfo, error)
}

// Storage is the durable slot holding one session's cart.
// GetCart returns an empty cart when nothing was stored yet.
type Storage interface {
	GetCart(ctx context.Context, sessionID string) (Cart, error)
	SetCart(ctx context.Context, sessionID string, c Cart) error
}

// Notifier receives user-facing messages produced by cart operations.
type Notifier interface {
	Notify(ctx context.Context, t Toast)
}
