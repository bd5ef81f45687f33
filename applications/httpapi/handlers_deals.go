package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/unimart/unimart/internal/httputil"
	"github.com/unimart/unimart/internal/middleware"
)

type markDealRequest struct {
	ProductID string `json:"product_id"`
}

func (s *Server) handleMarkDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.Allow(r.Context(), callerID(r), middleware.ActionDealRequest); err != nil {
		writeError(w, r, err)
		return
	}

	var req markDealRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	notification, err := s.services.Deals.MarkDeal(r.Context(), req.ProductID, callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, notification)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.services.Deals.ListNotifications(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *Server) handleCompleteDeal(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Deals.CompleteDeal(r.Context(), mux.Vars(r)["id"], callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Deals.CancelDeal(r.Context(), mux.Vars(r)["id"], callerID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleDealContact(w http.ResponseWriter, r *http.Request) {
	info, err := s.services.Deals.ContactInfo(r.Context(), mux.Vars(r)["id"], callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDealsCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"deals_completed": s.services.Deals.DealsCompleted(r.Context()),
	})
}
