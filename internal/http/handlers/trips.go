package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shuttle/internal/domain/models"
)

type createTripRequest struct {
	DestinationID int64     `json:"destination_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	MaxPassengers int       `json:"max_passengers"`
	FlatRate      int64     `json:"flat_rate"`
}

// tripResponse adds derived capacity to a trip.
type tripResponse struct {
	models.Trip
	SeatsLeft int `json:"seats_left"`
}

type createBookingRequest struct {
	UserID         int64  `json:"user_id"`
	RiderID        *int64 `json:"rider_id"`
	GuestName      string `json:"guest_name"`
	PassengerCount int    `json:"passenger_count"`
}

// POST /api/trips
func (a *API) CreateTrip(c *gin.Context) {
	var req createTripRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	trip, err := a.trips(c).CreateTrip(c.Request.Context(), actor(c), models.TripInput{
		DestinationID: req.DestinationID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		MaxPassengers: req.MaxPassengers,
		FlatRate:      req.FlatRate,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tripResponse{Trip: trip, SeatsLeft: trip.SeatsLeft()})
}

// GET /api/trips/:id
func (a *API) GetTrip(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	trip, err := a.trips(c).GetTrip(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tripResponse{Trip: trip, SeatsLeft: trip.SeatsLeft()})
}

// GET /api/trips/:id/quote?passengers=n
func (a *API) QuoteTrip(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, ok := intQuery(c, "passengers")
	if !ok {
		return
	}
	quote, err := a.trips(c).Quote(c.Request.Context(), id, n)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GET /api/trips/:id/bookings
func (a *API) ListTripBookings(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	bookings, err := a.bookings(c).ListTripBookings(c.Request.Context(), actor(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// POST /api/trips/:id/bookings
func (a *API) CreateBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req createBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := a.bookings(c).CreateBooking(c.Request.Context(), actor(c), models.BookingInput{
		TripID:         id,
		UserID:         req.UserID,
		RiderID:        req.RiderID,
		GuestName:      req.GuestName,
		PassengerCount: req.PassengerCount,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/trips/:id/refunds/sweep?booking_id=n
func (a *API) SweepTripRefunds(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var newBookingID int64
	if raw := c.Query("booking_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			respondError(c, http.StatusBadRequest, "validation_error", "invalid booking_id", nil)
			return
		}
		newBookingID = v
	}
	res, err := a.refunds(c).ProcessRetroactiveRefunds(c.Request.Context(), actor(c), id, newBookingID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/trips/:id/complete
func (a *API) CompleteTrip(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, err := a.bookings(c).CompleteTrip(c.Request.Context(), actor(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": id, "completed": n})
}
