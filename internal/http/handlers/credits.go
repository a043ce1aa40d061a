package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type purchaseRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type adjustmentRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// GET /api/credits/:userId/balance
func (a *API) GetBalance(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	bal, err := a.ledger(c).Balance(c.Request.Context(), actor(c), userID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

// GET /api/credits/:userId/transactions?page=&page_size=
func (a *API) ListTransactions(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	txs, page, err := a.ledger(c).Transactions(c.Request.Context(), actor(c), userID, pageQuery(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "pagination": page})
}

// GET /api/credits/:userId/statement
func (a *API) DownloadStatement(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	pdf, filename, err := a.statements(c).GenerateStatement(c.Request.Context(), actor(c), userID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// POST /api/credits/:userId/purchases
func (a *API) RecordPurchase(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	var req purchaseRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	tx, err := a.ledger(c).Purchase(c.Request.Context(), actor(c), userID, req.Amount, req.Reference)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// POST /api/credits/:userId/adjustments
func (a *API) AdjustCredits(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	var req adjustmentRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	tx, err := a.ledger(c).Adjust(c.Request.Context(), actor(c), userID, req.Amount, req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// GET /api/credits/:userId/reconcile?repair=true
func (a *API) ReconcileUser(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	repair := c.Query("repair") == "true" || c.Query("repair") == "1"
	check, err := a.ledger(c).Reconcile(c.Request.Context(), userID, repair)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}
