package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orders, err := s.orderSvc.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (s *Server) GetOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.UserID != userID {
		// Hide foreign orders instead of confirming they exist.
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) CancelOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.UserID != userID {
		AbortWithError(c, ErrNotFound)
		return
	}

	cancelled, err := s.orderSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cancelled})
}
