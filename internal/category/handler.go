package category

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oncostats/internal/dispatch"
	"oncostats/internal/render"
	"oncostats/pkg/models"
)

// Dispatcher is what the handler needs from dispatch.Dispatcher.
type Dispatcher interface {
	Categories() []string
	Dispatch(ctx context.Context, id string) (*dispatch.Result, error)
}

type Handler struct {
	Dispatcher Dispatcher
	Overview   models.Overview
	Logger     *zap.Logger
}

func NewHandler(d Dispatcher, overview models.Overview, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Dispatcher: d, Overview: overview, Logger: logger.Named("http")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)                   // GET /categories
	rg.GET("/:id", h.get)                // GET /categories/:id
	rg.GET("/:id/charts/:n", h.chartPNG) // GET /categories/:id/charts/0.png
}

// RegisterOverview mounts GET /overview.
func (h *Handler) RegisterOverview(r gin.IRoutes) {
	r.GET("/overview", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Overview)
	})
}

func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.Dispatcher.Categories()})
}

func (h *Handler) get(c *gin.Context) {
	res, ok := h.dispatch(c)
	if !ok {
		return
	}
	if c.Query("format") == "records" {
		c.JSON(http.StatusOK, gin.H{
			"request_id":  res.RequestID,
			"category":    res.Category,
			"description": res.Description,
			"source":      res.Source,
			"columns":     res.Table.Columns,
			"records":     res.Table.Records(),
			"charts":      res.Charts,
			"text":        res.Text,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) chartPNG(c *gin.Context) {
	n, err := strconv.Atoi(strings.TrimSuffix(c.Param("n"), ".png"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chart index must be a non-negative integer"})
		return
	}

	res, ok := h.dispatch(c)
	if !ok {
		return
	}
	if n >= len(res.Charts) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found", "charts": len(res.Charts)})
		return
	}

	var buf bytes.Buffer
	if err := render.PNG(&buf, res.Charts[n], res.Table); err != nil {
		if errors.Is(err, render.ErrUnsupportedKind) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error(), "kind": res.Charts[n].Kind})
			return
		}
		h.Logger.Warn("render failed", zap.String("request_id", res.RequestID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) dispatch(c *gin.Context) (*dispatch.Result, bool) {
	res, err := h.Dispatcher.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		code := dispatch.ErrorCode(err)
		status := StatusFor(code)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("dispatch failed", zap.String("category", c.Param("id")), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": code})
		return nil, false
	}
	c.Header("X-Request-ID", res.RequestID)
	return res, true
}

// StatusFor maps a dispatch error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case dispatch.CodeUnknownCategory:
		return http.StatusNotFound
	case dispatch.CodeSourceUnavailable:
		return http.StatusServiceUnavailable
	case dispatch.CodeAmbiguousColumnAlias, dispatch.CodeMissingColumn:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
