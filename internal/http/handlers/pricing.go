package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shuttle/internal/domain/models"
)

type tierPayload struct {
	MinPassengers int   `json:"min_passengers"`
	CostPerPerson int64 `json:"cost_per_person"`
}

type replaceTiersRequest struct {
	Tiers []tierPayload `json:"tiers"`
}

// GET /api/destinations/:id/tiers
func (a *API) ListTiers(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tiers, err := a.pricing(c).ListTiers(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"destination_id": id, "tiers": tiers})
}

// PUT /api/destinations/:id/tiers
func (a *API) ReplaceTiers(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req replaceTiersRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	tiers := make([]models.PricingTier, 0, len(req.Tiers))
	for _, t := range req.Tiers {
		tiers = append(tiers, models.PricingTier{MinPassengers: t.MinPassengers, CostPerPerson: t.CostPerPerson})
	}
	saved, err := a.pricing(c).ReplaceTiers(c.Request.Context(), actor(c), id, tiers)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"destination_id": id, "tiers": saved})
}

// GET /api/destinations/:id/cost?passengers=n
func (a *API) DestinationCost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, ok := intQuery(c, "passengers")
	if !ok {
		return
	}
	cost, err := a.pricing(c).CalculateTripCost(c.Request.Context(), id, n)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if cost == nil {
		c.JSON(http.StatusOK, gin.H{"destination_id": id, "tiered": false, "cost": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"destination_id": id, "tiered": true, "cost": cost})
}
