package runs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pricehub/internal/ingest"
)

type Handler struct {
	Repo    *Repo
	Trigger *ingest.Trigger
}

func NewHandler(repo *Repo, trigger *ingest.Trigger) *Handler {
	return &Handler{Repo: repo, Trigger: trigger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)        // GET /runs
	rg.GET("/:id", h.getByID) // GET /runs/:id
}

// RegisterTrigger mounts POST on a group that is expected to carry auth.
func (h *Handler) RegisterTrigger(rg *gin.RouterGroup) {
	rg.POST("", h.start) // POST /runs
}

func (h *Handler) list(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	items, err := h.Repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	resp := gin.H{"items": items, "limit": limit, "offset": offset}
	if h.Trigger != nil {
		if id, ok := h.Trigger.Running(); ok {
			resp["running"] = id
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getByID(c *gin.Context) {
	res, err := h.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":      res,
		"failures": res.Failures(),
	})
}

func (h *Handler) start(c *gin.Context) {
	if h.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "triggering disabled"})
		return
	}

	id, err := h.Trigger.Start()
	if errors.Is(err, ingest.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": id})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
