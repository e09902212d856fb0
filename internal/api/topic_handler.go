package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pulsehub/internal/dto/req"
	"pulsehub/internal/dto/resp"
	"pulsehub/internal/middleware"
	"pulsehub/internal/service"
	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/constraints"

	"github.com/gin-gonic/gin"
)

// CatalogProvider lists persisted topic records.
type CatalogProvider interface {
	List(ctx context.Context, prefix, instance string, page, pageSize int) (*resp.CatalogResponse, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type TopicHandler struct {
	hub     *service.Hub
	ingest  *service.Ingestor
	catalog CatalogProvider
	checks  map[string]HealthCheck
	maxWait time.Duration
}

func NewTopicHandler(hub *service.Hub, ingest *service.Ingestor, catalog CatalogProvider, checks map[string]HealthCheck) *TopicHandler {
	return &TopicHandler{
		hub:     hub,
		ingest:  ingest,
		catalog: catalog,
		checks:  checks,
		maxWait: 30 * time.Second,
	}
}

func (h *TopicHandler) ListTopics(c *gin.Context) {
	prefix := c.Query("prefix")
	infos := h.hub.Topics()
	data := make([]v1.TopicInfo, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Key.Label, prefix) {
			data = append(data, info.V1())
		}
	}
	c.JSON(http.StatusOK, resp.TopicListResponse{Data: data})
}

// Latest answers with the current value of one topic, waiting up to ?wait=
// for a first value.
func (h *TopicHandler) Latest(c *gin.Context) {
	ref, err := h.hub.ParseRef(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	wait := time.Second
	if s := c.Query("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wait"})
			return
		}
		wait = min(d, h.maxWait)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	dp, err := h.hub.LatestAny(ctx, ref)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dp.V1())
}

func (h *TopicHandler) publish(c *gin.Context, r req.IngestRequest) (resp.IngestResponse, error) {
	if prefix := c.GetString(middleware.ClientPrefixKey); !strings.HasPrefix(r.Label, prefix) {
		return resp.IngestResponse{}, errForbiddenLabel{label: r.Label}
	}
	ref, err := h.ingest.Publish(c.Request.Context(), r.Label, constraints.ParseUnits(r.Units), r.Value)
	if err != nil {
		return resp.IngestResponse{}, err
	}
	return resp.IngestResponse{ID: ref.ID.String(), Label: ref.Label}, nil
}

type errForbiddenLabel struct{ label string }

func (e errForbiddenLabel) Error() string {
	return fmt.Sprintf("label %q is outside this key's prefix", e.label)
}

func (h *TopicHandler) Ingest(c *gin.Context) {
	var r req.IngestRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	out, err := h.publish(c, r)
	if err != nil {
		if _, ok := err.(errForbiddenLabel); ok {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *TopicHandler) IngestBatch(c *gin.Context) {
	var r req.IngestBatchRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	out := make([]resp.IngestResponse, 0, len(r.Points))
	for _, p := range r.Points {
		res, err := h.publish(c, p)
		if err != nil {
			if _, ok := err.(errForbiddenLabel); ok {
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "accepted": out})
				return
			}
			c.JSON(statusOf(err), gin.H{"error": err.Error(), "accepted": out})
			return
		}
		out = append(out, res)
	}
	c.JSON(http.StatusOK, gin.H{"accepted": out})
}

func (h *TopicHandler) Catalog(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not configured"})
		return
	}
	var r req.CatalogRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}
	out, err := h.catalog.List(c.Request.Context(), r.Prefix, r.Instance, r.Page, r.PageSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *TopicHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": name, "error": err.Error()})
			return
		}
	}
	rt := h.hub.Runtime()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"topics":          h.hub.Keys().Len(),
		"compute_pending": rt.Compute.Pending(),
		"io_running":      rt.IO.Running(),
	})
}
