package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	checkoutdomain "github.com/shafran/commerce/internal/checkout/domain"
)

func (s *Server) Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.Checkout(c.Request.Context(), cartdomain.Identity{UserID: &userID}, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
