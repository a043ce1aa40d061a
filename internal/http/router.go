package api

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"

	intconfig "shuttle/internal/config"
	h "shuttle/internal/http/handlers"
	"shuttle/internal/http/middleware"
	"shuttle/internal/utils"
)

func NewRouter(cfg intconfig.Config, a *h.API) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		gin.Recovery(),
		middleware.CORS(cfg.AllowedOrigins()),
		middleware.RateLimit(cfg.RateLimitPerMin),
		middleware.Identity([]byte(cfg.JWTSecret)),
	)

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.GetLogger().Warn("failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/db-check", a.DBCheck)
		api.GET("/routes", h.Routes)

		authed := api.Group("", middleware.RequireAuth())
		admin := api.Group("", middleware.RequireAdmin())

		// Trips
		api.GET("/trips/:id", a.GetTrip)
		api.GET("/trips/:id/quote", a.QuoteTrip)
		admin.POST("/trips", a.CreateTrip)
		authed.GET("/trips/:id/bookings", a.ListTripBookings)
		authed.POST("/trips/:id/bookings", a.CreateBooking)
		admin.POST("/trips/:id/refunds/sweep", a.SweepTripRefunds)
		admin.POST("/trips/:id/complete", a.CompleteTrip)

		// Bookings
		authed.GET("/bookings/:id", a.GetBooking)
		authed.POST("/bookings/:id/cancel", a.CancelBooking)

		// Pricing
		api.GET("/destinations/:id/tiers", a.ListTiers)
		api.GET("/destinations/:id/cost", a.DestinationCost)
		admin.PUT("/destinations/:id/tiers", a.ReplaceTiers)

		// Credits
		authed.GET("/credits/:userId/balance", a.GetBalance)
		authed.GET("/credits/:userId/transactions", a.ListTransactions)
		authed.GET("/credits/:userId/statement", a.DownloadStatement)
		admin.POST("/credits/:userId/purchases", a.RecordPurchase)
		admin.POST("/credits/:userId/adjustments", a.AdjustCredits)
		admin.GET("/credits/:userId/reconcile", a.ReconcileUser)
	}

	h.SetRouter(r)
	return r
}
