// cartstore/local_cartstore.go

package cartstore

import (
	"context"
	"sync"

	"github.com/norun9/rocketshoes-cart/cart"
)

// LocalCartStore keeps encoded carts in memory.
type LocalCartStore struct {
	mu    sync.RWMutex
	store map[string][]byte
	codec Codec
}

// NewLocalCartStore constructor
func NewLocalCartStore(codec Codec) *LocalCartStore {
	return &LocalCartStore{
		store: make(map[string][]byte),
		codec: codec,
	}
}

// Initialize does nothing.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	return nil
}

// GetCart decodes the stored cart, or returns an empty one if none exists.
func (l *LocalCartStore) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	data, err := l.getRaw(sessionID)
	if err == ErrNotFound {
		return cart.Cart{}, nil
	}
	return decodeStored(l.codec, data, sessionID)
}

// SetCart overwrites the stored cart.
func (l *LocalCartStore) SetCart(ctx context.Context, sessionID string, c cart.Cart) error {
	data, err := l.codec.Marshal(c)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.store[sessionID] = data
	return nil
}

func (l *LocalCartStore) getRaw(sessionID string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, ok := l.store[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Ping always returns true.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}
