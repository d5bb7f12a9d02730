// services/cart_handlers.go

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
)

const (
	cookieSessionID = "shop_session-id"
	cookieMaxAge    = 60 * 60 * 48
)

type ctxKeySessionID struct{}
type ctxKeyLog struct{}

// ProductLister lists the whole catalog and its stock.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]cart.ProductInfo, error)
	ListStock(ctx context.Context) ([]cart.StockEntry, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// CartServer serves the cart API used by the storefront UI.
type CartServer struct {
	sessions *Sessions
	products ProductLister
	storage  Pinger
	log      logrus.FieldLogger
}

// NewCartServer creates the HTTP front of the cart.
func NewCartServer(sessions *Sessions, products ProductLister, storage Pinger, log logrus.FieldLogger) *CartServer {
	return &CartServer{
		sessions: sessions,
		products: products,
		storage:  storage,
		log:      log,
	}
}

// cartResponse is what every cart endpoint returns: the cart after the
// request plus the toasts raised while serving it.
type cartResponse struct {
	Cart       cart.Cart    `json:"cart"`
	TotalItems int          `json:"totalItems"`
	Toasts     []cart.Toast `json:"toasts"`
}

type productListing struct {
	cart.ProductInfo
	AmountInCart int `json:"amountInCart"`
	Stock        int `json:"stock"`
}

// Handler returns the router with logging and session middleware.
func (cs *CartServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/cart", cs.viewCartHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/cart/{productId:[0-9]+}", cs.addToCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/cart/{productId:[0-9]+}", cs.removeFromCartHandler).Methods(http.MethodDelete)
	r.HandleFunc("/api/cart/{productId:[0-9]+}", cs.updateAmountHandler).Methods(http.MethodPut)
	r.HandleFunc("/api/products", cs.productsHandler).Methods(http.MethodGet)
	r.HandleFunc("/_healthz", cs.healthHandler).Methods(http.MethodGet)

	return &logHandler{log: cs.log, next: ensureSessionID(r)}
}

func (cs *CartServer) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := cs.session(w, r)
	if !ok {
		return
	}
	cs.writeCart(w, r, sess)
}

func (cs *CartServer) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := cs.productID(w, r)
	if !ok {
		return
	}
	sess, ok := cs.session(w, r)
	if !ok {
		return
	}
	sess.Store.AddProduct(r.Context(), productID)
	cs.writeCart(w, r, sess)
}

func (cs *CartServer) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := cs.productID(w, r)
	if !ok {
		return
	}
	sess, ok := cs.session(w, r)
	if !ok {
		return
	}
	sess.Store.RemoveProduct(r.Context(), productID)
	cs.writeCart(w, r, sess)
}

func (cs *CartServer) updateAmountHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := cs.productID(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount *int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount == nil {
		cs.renderHTTPError(w, r, "request body must be {\"amount\": <int>}", http.StatusBadRequest)
		return
	}

	sess, ok := cs.session(w, r)
	if !ok {
		return
	}
	sess.Store.UpdateProductAmount(r.Context(), cart.UpdateProductAmount{
		ProductID: productID,
		Amount:    *body.Amount,
	})
	cs.writeCart(w, r, sess)
}

func (cs *CartServer) productsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := cs.products.ListProducts(r.Context())
	if err != nil {
		requestLog(r, cs.log).WithError(err).Error("could not retrieve products")
		cs.renderHTTPError(w, r, "could not retrieve products", http.StatusBadGateway)
		return
	}

	stock, err := cs.products.ListStock(r.Context())
	if err != nil {
		requestLog(r, cs.log).WithError(err).Error("could not retrieve stock")
		cs.renderHTTPError(w, r, "could not retrieve stock", http.StatusBadGateway)
		return
	}
	available := make(map[int]int, len(stock))
	for _, e := range stock {
		available[e.ID] = e.Amount
	}

	sess, ok := cs.session(w, r)
	if !ok {
		return
	}
	amounts := sess.Store.Cart().Amounts()
	out := make([]productListing, 0, len(products))
	for _, p := range products {
		out = append(out, productListing{
			ProductInfo:  p,
			AmountInCart: amounts[p.ID],
			Stock:        available[p.ID],
		})
	}
	cs.writeJSON(w, r, http.StatusOK, out)
}

func (cs *CartServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !cs.storage.Ping(r.Context()) {
		http.Error(w, "cart storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		requestLog(r, cs.log).WithError(err).Warn("failed to write response")
	}
}

// session loads the caller's session, answering 503 when its stored cart
// cannot be read.
func (cs *CartServer) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, _ := r.Context().Value(ctxKeySessionID{}).(string)
	sess, err := cs.sessions.Get(r.Context(), id)
	if err != nil {
		requestLog(r, cs.log).WithError(err).Error("could not load cart")
		cs.renderHTTPError(w, r, "cart storage unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return sess, true
}

func (cs *CartServer) productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["productId"])
	if err != nil {
		cs.renderHTTPError(w, r, "invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (cs *CartServer) writeCart(w http.ResponseWriter, r *http.Request, sess *Session) {
	c := sess.Store.Cart()
	cs.writeJSON(w, r, http.StatusOK, cartResponse{
		Cart:       c,
		TotalItems: c.TotalItems(),
		Toasts:     sess.Toasts.Drain(),
	})
}

func (cs *CartServer) renderHTTPError(w http.ResponseWriter, r *http.Request, msg string, code int) {
	requestLog(r, cs.log).WithField("status", code).Warn(msg)
	cs.writeJSON(w, r, code, map[string]string{"error": msg})
}

func (cs *CartServer) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLog(r, cs.log).WithError(err).Warn("failed to encode response")
	}
}

// ensureSessionID assigns a session cookie to first-time visitors.
func ensureSessionID(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if c, err := r.Cookie(cookieSessionID); err == nil && c.Value != "" {
			sessionID = c.Value
		} else {
			sessionID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     cookieSessionID,
				Value:    sessionID,
				MaxAge:   cookieMaxAge,
				Path:     "/",
				HttpOnly: true,
			})
		}
		ctx := context.WithValue(r.Context(), ctxKeySessionID{}, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

type logHandler struct {
	log  logrus.FieldLogger
	next http.Handler
}

type responseRecorder struct {
	b      int
	status int
	w      http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header { return r.w.Header() }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.w.Write(p)
	r.b += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.w.WriteHeader(statusCode)
}

func (lh *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := uuid.New()
	log := lh.log.WithFields(logrus.Fields{
		"http.req.path":   r.URL.Path,
		"http.req.method": r.Method,
		"http.req.id":     requestID.String(),
	})

	start := time.Now()
	rr := &responseRecorder{w: w}
	log.Debug("request started")
	defer func() {
		log.WithFields(logrus.Fields{
			"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
			"http.resp.status":  rr.status,
			"http.resp.bytes":   rr.b,
		}).Debug("request complete")
	}()

	ctx = context.WithValue(ctx, ctxKeyLog{}, log)
	lh.next.ServeHTTP(rr, r.WithContext(ctx))
}

func requestLog(r *http.Request, fallback logrus.FieldLogger) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return fallback
}
