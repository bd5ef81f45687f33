package httpapi

import (
	"net/http"

	"github.com/unimart/unimart/internal/httputil"
	"github.com/unimart/unimart/internal/middleware"
	"github.com/unimart/unimart/services/auth"
)

type signUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	RoomNumber   string `json:"room_number"`
	AcademicYear string `json:"academic_year"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.services.Auth.SignUp(r.Context(), auth.SignUpInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		Phone:        req.Phone,
		RoomNumber:   req.RoomNumber,
		AcademicYear: req.AcademicYear,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.services.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetAccessToken(r.Context())
	if err := s.services.Auth.SignOut(r.Context(), token, callerID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.services.Auth.GetProfile(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.Allow(r.Context(), callerID(r), middleware.ActionProfileUpdate); err != nil {
		writeError(w, r, err)
		return
	}

	var req auth.UpdateProfileInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := s.services.Auth.UpdateProfile(r.Context(), callerID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.services.Products.GetUserStats(r.Context(), callerID(r)))
}
