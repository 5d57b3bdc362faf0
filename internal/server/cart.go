package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/shafran/commerce/internal/cart/domain"
)

func (s *Server) GetCart(c *gin.Context) {
	identity, ok := cartIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.cartSvc.GetOrCreate(c.Request.Context(), identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) AddCartItem(c *gin.Context) {
	identity, ok := cartIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req cartdomain.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.cartSvc.AddItem(c.Request.Context(), identity, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) UpdateCartItem(c *gin.Context) {
	identity, ok := cartIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req cartdomain.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.cartSvc.UpdateItem(c.Request.Context(), identity, itemID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	identity, ok := cartIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := s.cartSvc.RemoveItem(c.Request.Context(), identity, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ClearCart(c *gin.Context) {
	identity, ok := cartIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.cartSvc.Clear(c.Request.Context(), nil, identity); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cleared": true}})
}

type mergeCartRequest struct {
	GuestToken string `json:"guest_token"`
}

// MergeCart folds a guest cart into the authenticated user's cart,
// typically right after login.
func (s *Server) MergeCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req mergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	guestToken := strings.TrimSpace(req.GuestToken)
	if guestToken == "" {
		AbortWithError(c, newValidationError("guest_token", "invalid_guest_token", "invalid guest token"))
		return
	}

	view, err := s.cartSvc.Merge(c.Request.Context(), guestToken, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
