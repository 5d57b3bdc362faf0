package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	"github.com/shafran/commerce/pkg/signature"
	"go.uber.org/zap"
)

const (
	// HeaderGuestToken carries the opaque token identifying a guest
	// cart for callers without an account.
	HeaderGuestToken = "X-Guest-Token"

	contextUserIDKey     = "user_id"
	contextGuestTokenKey = "guest_token"
)

// parseBearerToken splits "Bearer <userID>.<hmac>" and verifies the
// signature over the user id with the shared auth secret.
func (s *Server) parseBearerToken(header string) (snowflake.ID, bool) {
	if s.cfg.AuthTokenSecret == "" {
		return 0, false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return 0, false
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	rawID, sig, ok := strings.Cut(token, ".")
	if !ok || rawID == "" || sig == "" {
		return 0, false
	}
	if !signature.VerifyHMACSHA256(rawID, sig, s.cfg.AuthTokenSecret) {
		return 0, false
	}

	userID, err := snowflake.ParseString(rawID)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// AuthRequired admits only signed user tokens.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.TrimSpace(header) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, ok := s.parseBearerToken(header)
		if !ok {
			s.log.Warn("rejected auth token",
				zap.String("path", c.FullPath()),
				zap.String("source_ip", c.ClientIP()),
			)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

// IdentityRequired admits a signed user token or a guest token. Cart
// routes accept both; everything downstream works off the identity.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.TrimSpace(header) != "" {
			userID, ok := s.parseBearerToken(header)
			if !ok {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Set(contextUserIDKey, userID)
			c.Next()
			return
		}

		guestToken := strings.TrimSpace(c.GetHeader(HeaderGuestToken))
		if guestToken == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextGuestTokenKey, guestToken)
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := v.(snowflake.ID)
	return userID, ok
}

// cartIdentity builds the cart owner from whichever credential the
// identity middleware accepted.
func cartIdentity(c *gin.Context) (cartdomain.Identity, bool) {
	if userID, ok := currentUserID(c); ok {
		return cartdomain.Identity{UserID: &userID}, true
	}
	if v, ok := c.Get(contextGuestTokenKey); ok {
		if token, ok := v.(string); ok && token != "" {
			return cartdomain.Identity{GuestToken: token}, true
		}
	}
	return cartdomain.Identity{}, false
}

// CallbackRateLimit throttles the provider callback routes per provider
// and per source address. Limiter failures let traffic through so a
// Redis outage cannot take payments down with it.
func (s *Server) CallbackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		provider := callbackProvider(c.FullPath())
		ctx := c.Request.Context()

		allowed, err := s.limiter.AllowProvider(ctx, provider)
		if err != nil {
			s.log.Warn("callback rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if allowed {
			allowed, err = s.limiter.AllowSource(ctx, provider, c.ClientIP())
			if err != nil {
				s.log.Warn("callback rate limiter unavailable", zap.Error(err))
				c.Next()
				return
			}
		}
		if !allowed {
			s.log.Warn("callback rate limited",
				zap.String("provider", provider),
				zap.String("source_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}

		c.Next()
	}
}

func callbackProvider(fullPath string) string {
	rest := strings.TrimPrefix(fullPath, "/callbacks/")
	if idx := strings.IndexByte(rest, '/'); idx > 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}
