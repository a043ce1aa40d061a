package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	intconfig "shuttle/internal/config"
	intdb "shuttle/internal/db"
)

var (
	routerMu sync.RWMutex
	router   *gin.Engine
)

// SetRouter stores the active gin engine for /api/routes.
func SetRouter(r *gin.Engine) {
	routerMu.Lock()
	defer routerMu.Unlock()
	router = r
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "shuttle backend running"})
}

var coreTables = []string{"trips", "bookings", "pricing_tiers", "credit_balances", "credit_transactions", "calendar_events"}

func (a *API) DBCheck(c *gin.Context) {
	if err := intconfig.EnsureDB(); err != nil {
		respondError(c, http.StatusServiceUnavailable, "db_unavailable", "database not connected", err.Error())
		return
	}
	db := a.DB
	if db == nil {
		db = intconfig.DB
	}
	ctx := c.Request.Context()
	tables := gin.H{}
	for _, t := range coreTables {
		tables[t] = intdb.HasTable(ctx, db, t)
	}
	var trips int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips").Scan(&trips); err != nil {
		respondError(c, http.StatusServiceUnavailable, "db_unavailable", "database query failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "database connection OK", "trips_in_db": trips, "tables": tables})
}

func Routes(c *gin.Context) {
	routerMu.RLock()
	r := router
	routerMu.RUnlock()
	if r == nil {
		respondError(c, http.StatusServiceUnavailable, "not_ready", "router not ready", nil)
		return
	}

	routes := r.Routes()
	out := make([]gin.H, 0, len(routes))
	for _, rt := range routes {
		out = append(out, gin.H{
			"method":  rt.Method,
			"path":    rt.Path,
			"handler": rt.Handler,
		})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}
