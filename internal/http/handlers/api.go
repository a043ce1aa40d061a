package handlers

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"shuttle/internal/domain"
	"shuttle/internal/http/middleware"
	"shuttle/internal/services"
)

// API bundles the services the handlers call. Each request works on a copy
// stamped with its request_id.
type API struct {
	DB         *sql.DB
	Pricing    services.PricingService
	Ledger     services.LedgerService
	Refunds    services.RefundService
	Bookings   services.BookingService
	Trips      services.TripService
	Statements services.StatementService
}

func (a *API) pricing(c *gin.Context) services.PricingService {
	s := a.Pricing
	s.RequestID = middleware.GetRequestID(c)
	return s
}

func (a *API) ledger(c *gin.Context) services.LedgerService {
	s := a.Ledger
	s.RequestID = middleware.GetRequestID(c)
	return s
}

func (a *API) refunds(c *gin.Context) services.RefundService {
	s := a.Refunds
	s.RequestID = middleware.GetRequestID(c)
	s.Ledger.RequestID = s.RequestID
	s.Pricing.RequestID = s.RequestID
	return s
}

func (a *API) bookings(c *gin.Context) services.BookingService {
	s := a.Bookings
	s.RequestID = middleware.GetRequestID(c)
	return s
}

func (a *API) trips(c *gin.Context) services.TripService {
	s := a.Trips
	s.RequestID = middleware.GetRequestID(c)
	return s
}

func (a *API) statements(c *gin.Context) services.StatementService {
	s := a.Statements
	s.RequestID = middleware.GetRequestID(c)
	return s
}

// actor is the caller, or the zero (anonymous) context.
func actor(c *gin.Context) domain.RequestContext {
	a, _ := middleware.Actor(c)
	return a
}
