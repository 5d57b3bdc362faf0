package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
)

func (s *Server) CreatePayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req paymentdomain.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	intent, err := s.paymentSvc.CreatePayment(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": intent})
}

func (s *Server) ListPayments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payments, err := s.paymentSvc.ListUserPayments(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// PaymentStatus polls the provider for a fresh answer and returns the
// ledger status after any resulting transition.
func (s *Server) PaymentStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if payment.UserID != userID {
		AbortWithError(c, ErrNotFound)
		return
	}

	status, err := s.paymentSvc.CheckStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"payment_id": id.String(),
		"status":     status,
	}})
}

func (s *Server) RefundPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}
