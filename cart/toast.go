// cart/toast.go

package cart

// ToastKind classifies a user-facing message.
type ToastKind string

const (
	StockExceeded ToastKind = "stock_exceeded"
	AddFailed     ToastKind = "add_failed"
	RemoveFailed  ToastKind = "remove_failed"
	UpdateFailed  ToastKind = "update_failed"
)

var toastMessages = map[ToastKind]string{
	StockExceeded: "Quantidade solicitada fora de estoque",
	AddFailed:     "Erro na adição do produto",
	RemoveFailed:  "Erro na remoção do produto",
	UpdateFailed:  "Erro na alteração de quantidade do produto",
}

// Toast is a transient error message shown to the shopper.
type Toast struct {
	Kind    ToastKind `json:"kind"`
	Message string    `json:"message"`
}

// NewToast returns the toast for kind with its storefront message.
func NewToast(kind ToastKind) Toast {
	return Toast{Kind: kind, Message: toastMessages[kind]}
}
