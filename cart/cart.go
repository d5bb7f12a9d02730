// cart/cart.go

package cart

// ProductInfo is the catalog metadata of a product.
type ProductInfo struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Product is a cart line: catalog metadata plus the quantity held in the cart.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount"`
}

// StockEntry is the maximum purchasable quantity of a product.
type StockEntry struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// UpdateProductAmount asks for an absolute quantity of a product.
type UpdateProductAmount struct {
	ProductID int `json:"productId"`
	Amount    int `json:"amount"`
}

// Cart is an ordered sequence of lines, unique by product id.
// Methods never modify the receiver; they return a new Cart.
type Cart []Product

// NewLine builds a cart line from catalog metadata.
func NewLine(info ProductInfo, amount int) Product {
	return Product{
		ID:     info.ID,
		Title:  info.Title,
		Price:  info.Price,
		Image:  info.Image,
		Amount: amount,
	}
}

// Index returns the position of the line for productID, or -1.
func (c Cart) Index(productID int) int {
	for i, p := range c {
		if p.ID == productID {
			return i
		}
	}
	return -1
}

// Find returns the line for productID.
func (c Cart) Find(productID int) (Product, bool) {
	if i := c.Index(productID); i >= 0 {
		return c[i], true
	}
	return Product{}, false
}

// Clone returns a copy that shares no backing array with c.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// Append returns a new cart with line added at the end.
func (c Cart) Append(line Product) Cart {
	out := make(Cart, 0, len(c)+1)
	out = append(out, c...)
	return append(out, line)
}

// WithAmount returns a new cart where the line for productID carries amount.
// The cart is returned unchanged (as a copy) when no such line exists.
func (c Cart) WithAmount(productID, amount int) Cart {
	out := c.Clone()
	if i := out.Index(productID); i >= 0 {
		line := out[i]
		line.Amount = amount
		out[i] = line
	}
	return out
}

// Without returns a new cart without the line for productID, keeping order.
func (c Cart) Without(productID int) Cart {
	out := make(Cart, 0, len(c))
	for _, p := range c {
		if p.ID != productID {
			out = append(out, p)
		}
	}
	return out
}

// TotalItems sums the amounts of every line.
func (c Cart) TotalItems() int {
	n := 0
	for _, p := range c {
		n += p.Amount
	}
	return n
}

// Amounts maps product id to quantity in the cart.
func (c Cart) Amounts() map[int]int {
	m := make(map[int]int, len(c))
	for _, p := range c {
		m[p.ID] = p.Amount
	}
	return m
}
