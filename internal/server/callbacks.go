package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shafran/commerce/internal/payment/adapters/click"
	"github.com/shafran/commerce/internal/payment/adapters/nasiya"
	"github.com/shafran/commerce/internal/payment/adapters/payme"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
	"go.uber.org/zap"
)

// Callback handlers never use the JSON error envelope: each provider
// expects its own protocol response, usually with HTTP 200 even for
// rejections. Authenticity failures are answered with the provider's
// documented error code and logged as security events.

func (s *Server) readCallbackBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Warn("callback body read failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		return nil, false
	}
	return body, true
}

func isCallbackAuthError(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidSignature) ||
		errors.Is(err, paymentdomain.ErrUnauthorizedCallback)
}

func (s *Server) logCallbackRejected(c *gin.Context, provider string, err error) {
	s.log.Warn("rejected provider callback",
		zap.String("provider", provider),
		zap.String("source_ip", c.ClientIP()),
		zap.Error(err),
	)
}

// PaymeCallback speaks JSON-RPC 2.0. The response echoes the request id,
// so the id is recovered from the raw body even when authentication
// fails.
func (s *Server) PaymeCallback(c *gin.Context) {
	body, ok := s.readCallbackBody(c)
	if !ok {
		c.JSON(http.StatusOK, payme.AuthErrorResponse(nil))
		return
	}

	var envelope struct {
		ID any `json:"id"`
	}
	_ = json.Unmarshal(body, &envelope)

	result, err := s.paymentSvc.HandleCallback(c.Request.Context(), paymentdomain.MethodPayme, paymentdomain.Callback{
		Body:   body,
		Header: c.Request.Header,
	})
	if err != nil {
		s.logCallbackRejected(c, "payme", err)
		if isCallbackAuthError(err) {
			c.JSON(http.StatusOK, payme.AuthErrorResponse(envelope.ID))
			return
		}
		c.JSON(http.StatusOK, payme.Response{
			JSONRPC: "2.0",
			ID:      envelope.ID,
			Error:   &payme.RPCError{Code: payme.CodeInternal, Message: "internal error"},
		})
		return
	}

	c.JSON(http.StatusOK, result.Response)
}

func (s *Server) ClickPrepare(c *gin.Context) {
	s.clickCallback(c, "prepare")
}

func (s *Server) ClickComplete(c *gin.Context) {
	s.clickCallback(c, "complete")
}

func (s *Server) clickCallback(c *gin.Context, phase string) {
	body, ok := s.readCallbackBody(c)
	if !ok {
		c.JSON(http.StatusOK, click.SignatureErrorResponse())
		return
	}

	result, err := s.paymentSvc.HandleCallback(c.Request.Context(), paymentdomain.MethodClick, paymentdomain.Callback{
		Body:   body,
		Header: c.Request.Header,
		Phase:  phase,
	})
	if err != nil {
		s.logCallbackRejected(c, "click", err)
		c.JSON(http.StatusOK, click.SignatureErrorResponse())
		return
	}

	c.JSON(http.StatusOK, result.Response)
}

// NasiyaCallback multiplexes the check/create/confirm/reverse/status
// phases over one route. Unlike payme and click, nasiya expects a real
// 401 for bad credentials. Unknown phases pass through so the adapter
// can answer with its documented phase-unknown code.
func (s *Server) NasiyaCallback(c *gin.Context) {
	body, ok := s.readCallbackBody(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, nasiya.UnauthorizedResponse())
		return
	}

	result, err := s.paymentSvc.HandleCallback(c.Request.Context(), paymentdomain.MethodNasiya, paymentdomain.Callback{
		Body:   body,
		Header: c.Request.Header,
		Phase:  c.Param("phase"),
	})
	if err != nil {
		s.logCallbackRejected(c, "nasiya", err)
		if isCallbackAuthError(err) {
			c.JSON(http.StatusUnauthorized, nasiya.UnauthorizedResponse())
			return
		}
		c.JSON(http.StatusInternalServerError, nasiya.PhaseResponse{
			Status:    "error",
			ErrorCode: http.StatusInternalServerError,
			ErrorNote: "internal error",
		})
		return
	}

	c.JSON(http.StatusOK, result.Response)
}
