package httppresentation

import (
	"net/http"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/catalog"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image"`
	Stock       *int            `json:"stock_quantity"`
}

func (req productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:        req.Name,
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
	}
}

type priceRequest struct {
	Price *decimal.Decimal `json:"price"`
}

func (h *Handler) handleAdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Catalog.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductList(products))
}

func (h *Handler) handleAdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.deps.Catalog.Create(r.Context(), req.input())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) handleAdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.deps.Catalog.Update(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleAdminUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Price == nil {
		writeDomainError(w, application.NewValidation("price is required"))
		return
	}
	p, err := h.deps.Catalog.UpdatePrice(r.Context(), r.PathValue("id"), *req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) handleAdminFulfilOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.Orders.Fulfil(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleAdminShortfalls(w http.ResponseWriter, r *http.Request) {
	shortfalls, err := h.deps.Catalog.Shortfalls(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shortfalls)
}
