package httppresentation

import (
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image,omitempty"`
	Stock       int             `json:"stock_quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toProductResponse(p *dominv.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductList(products []*dominv.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

type cartResponse struct {
	ID         string          `json:"id"`
	Items      []domcart.Line  `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Messages   []string        `json:"messages,omitempty"`
}

func toCartResponse(c *domcart.Cart, messages []string) cartResponse {
	resp := cartResponse{
		ID:         c.ID,
		Items:      c.Lines,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
		Messages:   messages,
	}
	if resp.Items == nil {
		resp.Items = []domcart.Line{}
	}
	return resp
}

type orderResponse struct {
	ID               string          `json:"id"`
	UserID           *string         `json:"user_id"`
	Items            []domorder.Line `json:"items"`
	Total            decimal.Decimal `json:"total_amount"`
	Status           domorder.Status `json:"status"`
	PaymentSessionID string          `json:"stripe_session_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            o.Lines,
		Total:            o.Total,
		Status:           o.Status,
		PaymentSessionID: o.PaymentSessionID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderList(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Catalog.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductList(products))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// cartID returns the caller's cart id, minting one when the header is absent.
// The id is always echoed so clients can keep using it.
func cartID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(headerCartID)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCartID, id)
	return id
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, messages, err := h.deps.Cart.Review(r.Context(), cartID(w, r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, messages))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	c, err := h.deps.Cart.AddItem(r.Context(), cartID(w, r), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, nil))
}

type customItemRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	ImageURL string          `json:"image"`
}

func (h *Handler) handleAddCustomItem(w http.ResponseWriter, r *http.Request) {
	var req customItemRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	c, err := h.deps.Cart.AddCustomItem(r.Context(), cartID(w, r), appcart.CustomItem{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, nil))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	ok, err := decodeJSON(w, r, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeDomainError(w, application.NewValidation("quantity is required"))
		return
	}
	c, err := h.deps.Cart.UpdateQuantity(r.Context(), cartID(w, r), r.PathValue("id"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, nil))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Cart.Remove(r.Context(), cartID(w, r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, nil))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Cart.Clear(r.Context(), cartID(w, r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	Items []domcart.Line `json:"items"`
}

type checkoutResponse struct {
	URL       string          `json:"url"`
	SessionID string          `json:"session_id"`
	OrderID   string          `json:"order_id,omitempty"`
	Total     decimal.Decimal `json:"total"`
}

// handleCheckout prices the posted lines, or the stored cart when the body
// is empty, and answers with the hosted payment page URL.
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	ok, err := decodeJSON(w, r, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	lines := req.Items
	if !ok || len(lines) == 0 {
		id := r.Header.Get(headerCartID)
		if id == "" {
			writeDomainError(w, application.NewValidation("cart is empty"))
			return
		}
		c, err := h.deps.Cart.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		lines = c.Lines
	}

	res, err := h.deps.Checkout.Execute(r.Context(), checkout.StartCheckoutInput{
		Lines:  lines,
		UserID: r.Header.Get(headerUserID),
		Email:  r.Header.Get(headerUserEmail),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		URL:       res.RedirectURL,
		SessionID: res.SessionID,
		OrderID:   res.OrderID,
		Total:     res.Total,
	})
}

func (h *Handler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errSignInRequired)
		return
	}
	orders, err := h.deps.Orders.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}
