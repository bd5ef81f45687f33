package httpapi

import (
	"net/http"

	"github.com/unimart/unimart/internal/httputil"
)

type otpSendRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.services.OTP.Send(r.Context(), req.Phone); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type otpVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.services.OTP.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
