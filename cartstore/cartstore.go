// cartstore/cartstore.go

package cartstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
)

// CartField is the slot name under which a session's cart is stored.
const CartField = "@RocketShoes:cart"

// ErrNotFound is returned by raw lookups when a session has no stored cart.
var ErrNotFound = errors.New("cart not found")

// ErrCorrupt is the cause of GetCart errors for undecodable stored data.
var ErrCorrupt = cart.ErrCorrupt

// ICartStore defines operations on cart storage.
type ICartStore interface {
	Initialize(ctx context.Context) error

	GetCart(ctx context.Context, sessionID string) (cart.Cart, error)
	SetCart(ctx context.Context, sessionID string, c cart.Cart) error

	Ping(ctx context.Context) bool
}

const maxConnectAttempts = 30

// waitReady pings until the backend answers, backing off exponentially
// up to 30 seconds between attempts.
func waitReady(ctx context.Context, log logrus.FieldLogger, ping func(context.Context) bool) error {
	for i := 0; i < maxConnectAttempts; i++ {
		log.Debugf("attempting Ping (attempt %d/%d)", i+1, maxConnectAttempts)
		if ping(ctx) {
			log.Infof("Ping successful on attempt %d", i+1)
			return nil
		}

		backoff := time.Duration(1000*(1<<uint(i))) * time.Millisecond
		if backoff > 30*time.Second || backoff <= 0 {
			backoff = 30 * time.Second
		}
		log.Infof("waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			log.WithError(ctx.Err()).Warn("context cancelled during backoff")
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errors.Errorf("failed to connect after %d attempts", maxConnectAttempts)
}

func decodeStored(codec Codec, data []byte, sessionID string) (cart.Cart, error) {
	c, err := codec.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "failed to parse cart data of session %s: %v", sessionID, err)
	}
	return c, nil
}
