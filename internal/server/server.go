package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shafran/commerce/internal/cart"
	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	"github.com/shafran/commerce/internal/catalog"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/checkout"
	checkoutdomain "github.com/shafran/commerce/internal/checkout/domain"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/notify"
	"github.com/shafran/commerce/internal/observability"
	obsmiddleware "github.com/shafran/commerce/internal/observability/logger"
	obsmetrics "github.com/shafran/commerce/internal/observability/metrics"
	obstracing "github.com/shafran/commerce/internal/observability/tracing"
	"github.com/shafran/commerce/internal/order"
	orderdomain "github.com/shafran/commerce/internal/order/domain"
	"github.com/shafran/commerce/internal/payment"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	catalog.Module,
	cart.Module,
	order.Module,
	payment.Module,
	checkout.Module,
	notify.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	catalogSvc  catalogdomain.Service
	cartSvc     cartdomain.Service
	orderSvc    orderdomain.Service
	paymentSvc  paymentdomain.Service
	checkoutSvc checkoutdomain.Service
	limiter     *ratelimit.CallbackLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	CatalogSvc  catalogdomain.Service
	CartSvc     cartdomain.Service
	OrderSvc    orderdomain.Service
	PaymentSvc  paymentdomain.Service
	CheckoutSvc checkoutdomain.Service
	Limiter     *ratelimit.CallbackLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		catalogSvc:  p.CatalogSvc,
		cartSvc:     p.CartSvc,
		orderSvc:    p.OrderSvc,
		paymentSvc:  p.PaymentSvc,
		checkoutSvc: p.CheckoutSvc,
		limiter:     p.Limiter,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterCallbackRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// Catalog browsing is public.
	api.GET("/products", s.ListProducts)
	api.GET("/products/:id", s.GetProduct)
	api.GET("/products/:id/variants", s.ListVariants)

	// Carts accept either a signed user token or a guest token.
	cartRoutes := api.Group("/cart", s.IdentityRequired())
	cartRoutes.GET("", s.GetCart)
	cartRoutes.POST("/items", s.AddCartItem)
	cartRoutes.PATCH("/items/:id", s.UpdateCartItem)
	cartRoutes.DELETE("/items/:id", s.RemoveCartItem)
	cartRoutes.DELETE("", s.ClearCart)

	authed := api.Group("", s.AuthRequired())
	authed.POST("/cart/merge", s.MergeCart)
	authed.POST("/checkout", s.Checkout)
	authed.GET("/orders", s.ListOrders)
	authed.GET("/orders/:id", s.GetOrder)
	authed.POST("/orders/:id/cancel", s.CancelOrder)
	authed.POST("/payments", s.CreatePayment)
	authed.GET("/payments", s.ListPayments)
	authed.GET("/payments/:id/status", s.PaymentStatus)
	authed.POST("/payments/:id/refund", s.RefundPayment)
}

func (s *Server) RegisterCallbackRoutes() {
	callbacks := s.engine.Group("/callbacks", s.CallbackRateLimit())

	callbacks.POST("/payme", s.PaymeCallback)
	callbacks.POST("/click/prepare", s.ClickPrepare)
	callbacks.POST("/click/complete", s.ClickComplete)
	callbacks.POST("/nasiya/:phase", s.NasiyaCallback)
}
