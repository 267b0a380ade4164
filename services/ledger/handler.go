package ledger

import (
	"net/http"

	"rewards-controlplane/pkg/db/pagination"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/middleware"
	"rewards-controlplane/pkg/server"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type adjustPointsRequest struct {
	Amount      *int64 `json:"amount" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func registerRoutes(r *server.Router, svc *Service) {
	h := &handler{svc: svc}

	r.API.GET("/me/ledger", h.myLedger)

	admin := r.API.Group("/admin")
	admin.POST("/users/:id/points", h.adjustPoints)
	admin.GET("/users/:id/ledger", h.userLedger)
	admin.GET("/users/:id/ledger/verify", h.verifyChain)
	admin.GET("/ledger/reconcile", h.reconcile)
}

func pathUserID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.Error(errutil.ValidationFailed("invalid user id", err))
		return 0, false
	}
	return id, true
}

func (h *handler) listEntries(c *gin.Context, userID snowflake.ID) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.ValidationFailed("invalid pagination", err))
		return
	}

	entries, info, err := h.svc.ListEntries(c.Request.Context(), userID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *handler) myLedger(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	h.listEntries(c, p.UserID)
}

func (h *handler) userLedger(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	h.listEntries(c, userID)
}

func (h *handler) adjustPoints(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req adjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("amount must be a non-zero integer and description is required", err))
		return
	}

	admin, _ := middleware.PrincipalFrom(c)
	entry, err := h.svc.AdjustPoints(c.Request.Context(), AdjustParams{
		UserID:      userID,
		Amount:      *req.Amount,
		Description: req.Description,
		AdminID:     admin.UserID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *handler) verifyChain(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	report, err := h.svc.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *handler) reconcile(c *gin.Context) {
	drifts, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consistent": len(drifts) == 0, "drifts": drifts})
}
