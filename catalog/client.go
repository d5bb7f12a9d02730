// catalog/client.go

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/norun9/rocketshoes-cart/cart"
)

// ErrNotFound is returned when the API has no record for the requested id.
var ErrNotFound = errors.New("not found")

// Client talks to the storefront API that serves /products and /stock.
// It implements both cart.StockOracle and cart.ProductCatalog.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	log     logrus.FieldLogger
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("cartservice/catalog"),
		log:     log.WithField("component", "catalog"),
	}
}

// GetStock fetches the current stock of one product.
func (c *Client) GetStock(ctx context.Context, productID int) (cart.StockEntry, error) {
	var stock cart.StockEntry
	if err := c.get(ctx, "GetStock", fmt.Sprintf("/stock/%d", productID), &stock); err != nil {
		return cart.StockEntry{}, errors.Wrapf(err, "stock of product %d", productID)
	}
	return stock, nil
}

// ListStock fetches the full stock snapshot.
func (c *Client) ListStock(ctx context.Context) ([]cart.StockEntry, error) {
	var stock []cart.StockEntry
	if err := c.get(ctx, "ListStock", "/stock", &stock); err != nil {
		return nil, errors.Wrap(err, "list stock")
	}
	return stock, nil
}

// GetProduct fetches the metadata of one product.
func (c *Client) GetProduct(ctx context.Context, productID int) (cart.ProductInfo, error) {
	var p cart.ProductInfo
	if err := c.get(ctx, "GetProduct", fmt.Sprintf("/products/%d", productID), &p); err != nil {
		return cart.ProductInfo{}, errors.Wrapf(err, "product %d", productID)
	}
	return p, nil
}

// ListProducts fetches the whole catalog.
func (c *Client) ListProducts(ctx context.Context) ([]cart.ProductInfo, error) {
	var products []cart.ProductInfo
	if err := c.get(ctx, "ListProducts", "/products", &products); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (c *Client) get(ctx context.Context, spanName, path string, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	url := c.baseURL + path
	span.SetAttributes(attribute.String("http.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Debug("api request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return errors.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
