package prices

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)          // GET /prices
	rg.GET("/latest", h.latest) // GET /prices/latest
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Item:    c.Query("item"),
		Store:   c.Query("store"),
		Zipcode: c.Query("zipcode"),
		Since:   c.Query("since"),
		Limit:   parseInt(c.Query("limit"), 50),
		Offset:  parseInt(c.Query("offset"), 0),
	}
	if q.Since != "" {
		if _, err := time.Parse("2006-01-02", q.Since); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be YYYY-MM-DD"})
			return
		}
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) latest(c *gin.Context) {
	items, err := h.Repo.Latest(c.Request.Context(), c.Query("zipcode"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "latest failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
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
