package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/middleware"
	"github.com/unimart/unimart/services/products"
)

func (s *Server) handleBrowseProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	page := parsePageParam(r.URL.Query().Get("page"))

	result, err := s.services.Browser.Browse(r.Context(), category, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreateProduct accepts a multipart form: product fields plus an
// optional image part.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.Allow(r.Context(), callerID(r), middleware.ActionProductUpload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(products.MaxImageBytes); err != nil {
		writeError(w, r, svcerr.Validation("Invalid multipart form", err))
		return
	}

	marketPrice, _ := strconv.ParseFloat(r.FormValue("market_price"), 64)
	sellingPrice, _ := strconv.ParseFloat(r.FormValue("selling_price"), 64)
	in := domain.NewProductInput{
		Name:         r.FormValue("name"),
		Description:  r.FormValue("description"),
		MarketPrice:  marketPrice,
		SellingPrice: sellingPrice,
		Category:     r.FormValue("category"),
	}

	var image *products.ImageUpload
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, products.MaxImageBytes+1))
		if readErr != nil {
			writeError(w, r, svcerr.Validation("Could not read image", readErr))
			return
		}
		image = &products.ImageUpload{
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
		}
	}

	created, err := s.services.Products.Create(r.Context(), callerID(r), in, image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request) {
	page := parsePageParam(r.URL.Query().Get("page"))
	listings, err := s.services.Products.MyListings(r.Context(), callerID(r), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": listings,
		"page":     page,
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.services.Products.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Products.Delete(r.Context(), callerID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type countResponse struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

func (s *Server) handleProductCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.services.Products.Count(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count, Limit: domain.MaxActiveProducts})
}

func (s *Server) handleProductCountRefresh(w http.ResponseWriter, r *http.Request) {
	count, err := s.services.Products.RefreshCount(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count, Limit: domain.MaxActiveProducts})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.services.Products.GetDashboard(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}
