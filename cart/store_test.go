// cart/store_test.go

package cart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/norun9/rocketshoes-cart/cart"
	"github.com/norun9/rocketshoes-cart/cartstore"
)

type fakeStock map[int]int

func (f fakeStock) GetStock(ctx context.Context, productID int) (cart.StockEntry, error) {
	amount, ok := f[productID]
	if !ok {
		return cart.StockEntry{}, errors.Errorf("no stock for %d", productID)
	}
	return cart.StockEntry{ID: productID, Amount: amount}, nil
}

type fakeCatalog map[int]cart.ProductInfo

func (f fakeCatalog) GetProduct(ctx context.Context, productID int) (cart.ProductInfo, error) {
	p, ok := f[productID]
	if !ok {
		return cart.ProductInfo{}, errors.Errorf("product %d not found", productID)
	}
	return p, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []cart.Toast
}

func (n *recordingNotifier) Notify(ctx context.Context, t cart.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, t)
}

func (n *recordingNotifier) kinds() []cart.ToastKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []cart.ToastKind
	for _, t := range n.toasts {
		out = append(out, t.Kind)
	}
	return out
}

type failingStorage struct {
	cartstore.ICartStore
}

func (failingStorage) SetCart(ctx context.Context, sessionID string, c cart.Cart) error {
	return errors.New("disk full")
}

type unreadableStorage struct {
	cartstore.ICartStore
}

func (unreadableStorage) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	return nil, errors.Wrap(cartstore.ErrCorrupt, "unexpected end of JSON input")
}

// flakyStorage fails the first failReads reads with a transport error.
type flakyStorage struct {
	*cartstore.LocalCartStore
	failReads int
}

func (f *flakyStorage) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("redis: connection refused")
	}
	return f.LocalCartStore.GetCart(ctx, sessionID)
}

var catalog = fakeCatalog{
	1: {ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/tenis1.jpg"},
	2: {ID: 2, Title: "Tênis VR Caminhada Confortável Detalhes Couro Masculino", Price: 139.9, Image: "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/tenis2.jpg"},
	3: {ID: 3, Title: "Tênis Adidas Duramo Lite 2.0", Price: 219.9, Image: "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/tenis3.jpg"},
}

type harness struct {
	store    *cart.Store
	storage  *cartstore.LocalCartStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, stock fakeStock, initial cart.Cart) *harness {
	t.Helper()
	ctx := context.Background()

	storage := cartstore.NewLocalCartStore(cartstore.JSONCodec{})
	if initial != nil {
		if err := storage.SetCart(ctx, "session", initial); err != nil {
			t.Fatalf("seed storage: %v", err)
		}
	}
	logger, _ := test.NewNullLogger()
	notifier := &recordingNotifier{}
	store, err := cart.Open(ctx, "session", cart.Deps{
		Storage: storage,
		Stock:   stock,
		Catalog: catalog,
		Logger:  logger,
	}, notifier)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return &harness{store: store, storage: storage, notifier: notifier}
}

func (h *harness) assertPersisted(t *testing.T) {
	t.Helper()
	stored, err := h.storage.GetCart(context.Background(), "session")
	if err != nil {
		t.Fatalf("read storage: %v", err)
	}
	if diff := cmp.Diff(h.store.Cart(), stored); diff != "" {
		t.Errorf("persisted cart differs from memory (-memory +stored):\n%s", diff)
	}
}

func line(id, amount int) cart.Product {
	return cart.NewLine(catalog[id], amount)
}

func TestAddProductAppendsNewLine(t *testing.T) {
	h := newHarness(t, fakeStock{1: 3, 2: 5}, cart.Cart{line(1, 2)})

	h.store.AddProduct(context.Background(), 2)

	want := cart.Cart{line(1, 2), line(2, 1)}
	if diff := cmp.Diff(want, h.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	if got := h.notifier.kinds(); len(got) != 0 {
		t.Errorf("unexpected toasts: %v", got)
	}
	h.assertPersisted(t)
}

func TestAddProductIncrementsExistingLine(t *testing.T) {
	h := newHarness(t, fakeStock{1: 3, 2: 5}, cart.Cart{line(1, 1), line(2, 2)})

	h.store.AddProduct(context.Background(), 2)

	want := cart.Cart{line(1, 1), line(2, 3)}
	if diff := cmp.Diff(want, h.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	h.assertPersisted(t)
}

func TestAddProductStockExceeded(t *testing.T) {
	tests := []struct {
		name    string
		stock   fakeStock
		initial cart.Cart
	}{
		{"existing line at stock", fakeStock{1: 2}, cart.Cart{line(1, 2)}},
		{"new product out of stock", fakeStock{1: 0}, cart.Cart{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.stock, tt.initial)

			h.store.AddProduct(context.Background(), 1)

			if diff := cmp.Diff(tt.initial, h.store.Cart()); diff != "" {
				t.Errorf("cart changed (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]cart.ToastKind{cart.StockExceeded}, h.notifier.kinds()); diff != "" {
				t.Errorf("toasts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddProductFailures(t *testing.T) {
	tests := []struct {
		name      string
		productID int
		stock     fakeStock
	}{
		{"stock lookup fails", 1, fakeStock{}},
		{"catalog lookup fails", 9, fakeStock{9: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.stock, cart.Cart{})

			h.store.AddProduct(context.Background(), tt.productID)

			if got := h.store.Cart(); len(got) != 0 {
				t.Errorf("cart changed: %v", got)
			}
			if diff := cmp.Diff([]cart.ToastKind{cart.AddFailed}, h.notifier.kinds()); diff != "" {
				t.Errorf("toasts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddProductPersistFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	notifier := &recordingNotifier{}
	storage := failingStorage{cartstore.NewLocalCartStore(cartstore.JSONCodec{})}
	store, err := cart.Open(ctx, "session", cart.Deps{
		Storage: storage,
		Stock:   fakeStock{1: 5},
		Catalog: catalog,
		Logger:  logger,
	}, notifier)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	store.AddProduct(ctx, 1)

	if got := store.Cart(); len(got) != 0 {
		t.Errorf("cart changed after failed write: %v", got)
	}
	if diff := cmp.Diff([]cart.ToastKind{cart.AddFailed}, notifier.kinds()); diff != "" {
		t.Errorf("toasts mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveProduct(t *testing.T) {
	h := newHarness(t, fakeStock{}, cart.Cart{line(1, 1), line(2, 2), line(3, 1)})

	h.store.RemoveProduct(context.Background(), 2)

	want := cart.Cart{line(1, 1), line(3, 1)}
	if diff := cmp.Diff(want, h.store.Cart()); diff != "" {
		t.Errorf("cart mismatch (-want +got):\n%s", diff)
	}
	h.assertPersisted(t)
}

func TestRemoveAbsentProduct(t *testing.T) {
	initial := cart.Cart{line(1, 1)}
	h := newHarness(t, fakeStock{}, initial)

	h.store.RemoveProduct(context.Background(), 3)

	if diff := cmp.Diff(initial, h.store.Cart()); diff != "" {
		t.Errorf("cart changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]cart.ToastKind{cart.RemoveFailed}, h.notifier.kinds()); diff != "" {
		t.Errorf("toasts mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateProductAmount(t *testing.T) {
	tests := []struct {
		name       string
		req        cart.UpdateProductAmount
		want       cart.Cart
		wantToasts []cart.ToastKind
	}{
		{
			name: "within stock",
			req:  cart.UpdateProductAmount{ProductID: 2, Amount: 4},
			want: cart.Cart{line(1, 2), line(2, 4)},
		},
		{
			name: "decrement",
			req:  cart.UpdateProductAmount{ProductID: 1, Amount: 1},
			want: cart.Cart{line(1, 1), line(2, 1)},
		},
		{
			name:       "above stock",
			req:        cart.UpdateProductAmount{ProductID: 2, Amount: 6},
			want:       cart.Cart{line(1, 2), line(2, 1)},
			wantToasts: []cart.ToastKind{cart.StockExceeded},
		},
		{
			name: "zero is ignored",
			req:  cart.UpdateProductAmount{ProductID: 1, Amount: 0},
			want: cart.Cart{line(1, 2), line(2, 1)},
		},
		{
			name: "negative is ignored",
			req:  cart.UpdateProductAmount{ProductID: 1, Amount: -3},
			want: cart.Cart{line(1, 2), line(2, 1)},
		},
		{
			name:       "absent line",
			req:        cart.UpdateProductAmount{ProductID: 3, Amount: 1},
			want:       cart.Cart{line(1, 2), line(2, 1)},
			wantToasts: []cart.ToastKind{cart.UpdateFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fakeStock{1: 3, 2: 5, 3: 10}, cart.Cart{line(1, 2), line(2, 1)})

			h.store.UpdateProductAmount(context.Background(), tt.req)

			if diff := cmp.Diff(tt.want, h.store.Cart()); diff != "" {
				t.Errorf("cart mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantToasts, h.notifier.kinds()); diff != "" {
				t.Errorf("toasts mismatch (-want +got):\n%s", diff)
			}
			h.assertPersisted(t)
		})
	}
}

func TestUpdateProductAmountStockLookupFails(t *testing.T) {
	h := newHarness(t, fakeStock{}, cart.Cart{line(1, 1)})

	h.store.UpdateProductAmount(context.Background(), cart.UpdateProductAmount{ProductID: 1, Amount: 2})

	if diff := cmp.Diff([]cart.ToastKind{cart.UpdateFailed}, h.notifier.kinds()); diff != "" {
		t.Errorf("toasts mismatch (-want +got):\n%s", diff)
	}
}

func TestStockLimitScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fakeStock{1: 5}, nil)

	h.store.AddProduct(ctx, 1)
	if diff := cmp.Diff(cart.Cart{line(1, 1)}, h.store.Cart()); diff != "" {
		t.Fatalf("after first add (-want +got):\n%s", diff)
	}

	for i := 0; i < 3; i++ {
		h.store.AddProduct(ctx, 1)
	}
	if diff := cmp.Diff(cart.Cart{line(1, 4)}, h.store.Cart()); diff != "" {
		t.Fatalf("after four adds (-want +got):\n%s", diff)
	}

	h.store.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 5})
	if diff := cmp.Diff(cart.Cart{line(1, 5)}, h.store.Cart()); diff != "" {
		t.Fatalf("after update (-want +got):\n%s", diff)
	}

	h.store.AddProduct(ctx, 1)
	if diff := cmp.Diff(cart.Cart{line(1, 5)}, h.store.Cart()); diff != "" {
		t.Fatalf("after add beyond stock (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]cart.ToastKind{cart.StockExceeded}, h.notifier.kinds()); diff != "" {
		t.Errorf("toasts mismatch (-want +got):\n%s", diff)
	}
	h.assertPersisted(t)
}

func TestOpenWithUnreadableStorage(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	store, err := cart.Open(ctx, "session", cart.Deps{Storage: unreadableStorage{}, Logger: logger}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := store.Cart(); got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil cart, got %#v", got)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Errorf("want a warning to be logged, got %v", entry)
	}
}

func TestSubscribersReceiveCopies(t *testing.T) {
	h := newHarness(t, fakeStock{1: 5}, nil)

	var got []cart.Cart
	unsubscribe := h.store.Subscribe(func(c cart.Cart) {
		got = append(got, c)
	})

	h.store.AddProduct(context.Background(), 1)
	h.store.RemoveProduct(context.Background(), 7) // rejected, not published
	unsubscribe()
	h.store.AddProduct(context.Background(), 1)

	want := []cart.Cart{{line(1, 1)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("published carts mismatch (-want +got):\n%s", diff)
	}

	got[0][0].Amount = 99
	if h.store.Cart()[0].Amount == 99 {
		t.Error("subscriber mutation leaked into the store")
	}
}

func TestCartReturnsCopy(t *testing.T) {
	h := newHarness(t, fakeStock{}, cart.Cart{line(1, 1)})

	c := h.store.Cart()
	c[0].Amount = 42

	if got := h.store.Cart()[0].Amount; got != 1 {
		t.Errorf("store cart mutated through a copy: amount %d", got)
	}
}

func TestOpenKeepsStoredCartWhenReadFails(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	local := cartstore.NewLocalCartStore(cartstore.JSONCodec{})
	stored := cart.Cart{line(1, 2), line(3, 1)}
	if err := local.SetCart(ctx, "session", stored); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	storage := &flakyStorage{LocalCartStore: local, failReads: 1}
	deps := cart.Deps{
		Storage: storage,
		Stock:   fakeStock{1: 5, 2: 5, 3: 5},
		Catalog: catalog,
		Logger:  logger,
	}

	if _, err := cart.Open(ctx, "session", deps, nil); err == nil {
		t.Fatal("want Open to fail while storage is unreachable")
	}

	store, err := cart.Open(ctx, "session", deps, nil)
	if err != nil {
		t.Fatalf("Open after recovery: %v", err)
	}
	store.AddProduct(ctx, 2)

	got, err := local.GetCart(ctx, "session")
	if err != nil {
		t.Fatal(err)
	}
	want := cart.Cart{line(1, 2), line(3, 1), line(2, 1)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored cart (-want +got):\n%s", diff)
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	const n = 20
	tests := []struct {
		name       string
		stock      int
		wantAmount int
	}{
		{"stock covers every add", n, n},
		{"stock runs out", 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fakeStock{1: tt.stock}, nil)

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					h.store.AddProduct(context.Background(), 1)
				}()
			}
			wg.Wait()

			if diff := cmp.Diff(cart.Cart{line(1, tt.wantAmount)}, h.store.Cart()); diff != "" {
				t.Errorf("cart mismatch (-want +got):\n%s", diff)
			}
			exceeded := 0
			for _, k := range h.notifier.kinds() {
				if k != cart.StockExceeded {
					t.Errorf("unexpected toast %s", k)
				}
				exceeded++
			}
			if exceeded != n-tt.wantAmount {
				t.Errorf("want %d stock toasts, got %d", n-tt.wantAmount, exceeded)
			}
			h.assertPersisted(t)
		})
	}
}
