package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/chain"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/payment"
)

type Server struct {
	coordinator *payment.Coordinator
	logger      *slog.Logger
	mux         *http.ServeMux
}

func NewServer(coordinator *payment.Coordinator, logger *slog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		logger:      logger,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /payments/charge", s.charge)
	s.mux.HandleFunc("GET /payments/verify", s.verify)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) charge(w http.ResponseWriter, r *http.Request) {
	var req payment.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	charge, err := s.coordinator.InitiateCharge(r.Context(), req)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("initiate charge", "order_id", req.OrderID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to initiate payment")
		return
	}

	writeJSON(w, http.StatusOK, charge)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	paymentID := r.URL.Query().Get("paymentId")

	result, err := s.coordinator.VerifyPayment(r.Context(), reference, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "missing reference or paymentId")
		case errors.Is(err, payment.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "payment record not found")
		case errors.Is(err, chain.ErrTransactionNotFound):
			// Expected while the buyer's wallet is still settling.
			writeError(w, http.StatusNotFound, "transaction not found")
		case errors.Is(err, chain.ErrTransferInvalid):
			writeError(w, http.StatusBadRequest, "transaction validation failed")
		default:
			s.logger.Error("verify payment", "payment_id", paymentID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to verify payment")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
