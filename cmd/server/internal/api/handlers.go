// Package api implements the HTTP submission and analytics endpoints.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callytics/callytics/cmd/server/internal/jobs"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/degradation"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/health"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// Handler bundles the dependencies of the HTTP endpoints.
type Handler struct {
	store          *store.Store
	pool           *jobs.Pool
	healthCheckers []*health.HealthChecker
	enhancerCtrl   *degradation.DegradationController // nil when enhancement is disabled
}

// NewHandler creates the endpoint handler set.
func NewHandler(
	st *store.Store,
	pool *jobs.Pool,
	healthCheckers []*health.HealthChecker,
	enhancerCtrl *degradation.DegradationController,
) *Handler {
	return &Handler{
		store:          st,
		pool:           pool,
		healthCheckers: healthCheckers,
		enhancerCtrl:   enhancerCtrl,
	}
}

// analyzeRequest is the POST /api/analyze/ body.
type analyzeRequest struct {
	FileURL string `json:"file_url" binding:"required"`
}

// jobView is the JSON shape of a job row.
type jobView struct {
	ID           int64     `json:"id"`
	FileURL      string    `json:"file_url"`
	FileName     string    `json:"file_name"`
	Status       string    `json:"status"`
	ResultFileID *int64    `json:"result_file"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toJobView(j *store.Job) jobView {
	return jobView{
		ID:           j.ID,
		FileURL:      j.FileURL,
		FileName:     j.FileName,
		Status:       j.Status,
		ResultFileID: j.ResultFileID,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// HandleAnalyze accepts a recording URL and queues a processing job.
// Responds 202 with the pending job.
func (h *Handler) HandleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "file_url is required",
		})
		return
	}

	job, err := h.pool.Submit(c.Request.Context(), req.FileURL)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "job queue is full, retry later",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    toJobView(job),
	})
}

// HandleListJobs returns jobs newest first. Supports limit/offset query
// parameters (default 50/0).
func (h *Handler) HandleListJobs(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	list, err := h.store.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to list jobs",
		})
		return
	}

	views := make([]jobView, 0, len(list))
	for i := range list {
		views = append(views, toJobView(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}

// HandleGetJob returns one job by id.
func (h *Handler) HandleGetJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid job id",
		})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to load job",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toJobView(job),
	})
}

// HandleListAnalytics returns processed call summaries newest first.
func (h *Handler) HandleListAnalytics(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	list, err := h.store.ListFileSummaries(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to list analytics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
	})
}

// HandleGetAnalytics returns the full record for one processed call:
// file metadata, acoustic features, utterances and sentiment distribution.
func (h *Handler) HandleGetAnalytics(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid file id",
		})
		return
	}

	detail, err := h.store.GetFileDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "file not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to load analytics",
		})
		return
	}

	utterances := make([]gin.H, 0, len(detail.Utterances))
	for _, u := range detail.Utterances {
		utterances = append(utterances, gin.H{
			"sequence":   u.Sequence,
			"speaker":    u.Speaker,
			"start_time": u.StartTime,
			"end_time":   u.EndTime,
			"content":    u.Content,
			"sentiment":  u.Sentiment,
			"profane":    u.Profane,
		})
	}

	f := detail.File
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":         f.ID,
			"name":       f.Name,
			"extension":  f.Extension,
			"path":       f.Path,
			"rate":       f.Rate,
			"channels":   f.Channels,
			"duration":   f.Duration,
			"topic_name": detail.TopicName,
			"summary":    f.Summary,
			"conflict":   f.Conflict,
			"silence":    f.Silence,
			"features": gin.H{
				"rms_loudness":       f.Features.RMSLoudness,
				"zero_crossing_rate": f.Features.ZeroCrossingRate,
				"spectral_centroid":  f.Features.SpectralCentroid,
				"eq_20_250_hz":       f.Features.EQ20_250,
				"eq_250_2000_hz":     f.Features.EQ250_2000,
				"eq_2000_6000_hz":    f.Features.EQ2000_6000,
				"eq_6000_20000_hz":   f.Features.EQ6000_20000,
				"mfcc":               f.Features.MFCC,
			},
			"sentiment":  detail.Sentiment,
			"utterances": utterances,
		},
	})
}

// HandleHealthz is the liveness probe.
func (h *Handler) HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleServicesHealth reports every monitored model service plus the
// enhancement degradation state. Responds 200 when all services are healthy,
// 503 otherwise.
func (h *Handler) HandleServicesHealth(c *gin.Context) {
	services := make(map[string]gin.H, len(h.healthCheckers))
	allHealthy := true
	for _, hc := range h.healthCheckers {
		status := hc.GetStatus()
		if !status.IsHealthy {
			allHealthy = false
		}
		services[hc.ServiceName()] = gin.H{
			"is_healthy":        status.IsHealthy,
			"last_check_time":   status.LastCheckTime,
			"consecutive_fails": status.ConsecutiveFails,
			"error_message":     status.ErrorMessage,
		}
	}

	data := gin.H{"services": services}
	if h.enhancerCtrl != nil {
		data["enhancer_degraded"] = h.enhancerCtrl.IsDegraded()
	}

	code := http.StatusOK
	if !allHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"success": allHealthy,
		"data":    data,
	})
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return defaultValue
}
