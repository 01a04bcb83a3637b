package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/nordmarkt/storefront/internal/domain/catalog"
)

type productResponse struct {
	ID        string         `json:"id"`
	BrandID   string         `json:"brand_id"`
	BrandName string         `json:"brand_name"`
	Name      string         `json:"name"`
	Price     string         `json:"price"`
	Currency  string         `json:"currency"`
	Image     string         `json:"image,omitempty"`
	Sizes     []sizeResponse `json:"sizes"`
}

type sizeResponse struct {
	Size    string `json:"size"`
	InStock bool   `json:"in_stock"`
}

// ListProducts returns all approved catalog entries.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(w, r, errors.Wrap(err, "list products"))
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		if !p.Sellable() {
			continue
		}
		out = append(out, h.toProductResponse(p))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// GetProduct returns one catalog entry by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		writeInternalError(w, r, errors.Wrap(err, "get product"))
		return
	}

	writeJSON(w, r, http.StatusOK, h.toProductResponse(*p))
}

func (h *Handler) toProductResponse(p catalog.Product) productResponse {
	sizes := make([]sizeResponse, len(p.Sizes))
	for i, s := range p.Sizes {
		sizes[i] = sizeResponse{Size: s.Size, InStock: s.InStock}
	}
	return productResponse{
		ID:        p.ID,
		BrandID:   p.BrandID,
		BrandName: p.BrandName,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Currency:  p.Currency,
		Image:     h.imageURL(p.Image),
		Sizes:     sizes,
	}
}

// imageURL prepends the configured base URL to relative image paths.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
