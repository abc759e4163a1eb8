package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/schoolorders-backend/api/responses"
	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
)

type categoryView struct {
	Name        string          `json:"name"`
	DiscountKey string          `json:"discount_key"`
	Items       []catalog.Entry `json:"items"`
}

func viewOf(cat *catalog.Catalog, name string) categoryView {
	return categoryView{Name: name, DiscountKey: catalog.DiscountKey(name), Items: cat.Items(name)}
}

// CatalogList returns every category with its products in file order.
func CatalogList(cat *catalog.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		names := cat.Categories()
		out := make([]categoryView, 0, len(names))
		for _, name := range names {
			out = append(out, viewOf(cat, name))
		}
		responses.WriteSuccess(w, map[string]any{"categories": out})
	}
}

func CatalogCategory(cat *catalog.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		name := chi.URLParam(r, "category")
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		name = strings.TrimSpace(name)
		if !cat.HasCategory(name) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "category not found"))
			return
		}
		responses.WriteSuccess(w, viewOf(cat, name))
	}
}
