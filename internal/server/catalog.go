package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListProducts(c *gin.Context) {
	products, err := s.catalogSvc.ListProducts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) GetProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := s.catalogSvc.GetProduct(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) ListVariants(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	variants, err := s.catalogSvc.ListVariants(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": variants})
}
