package handlers

// handlers map inbound HTTP requests onto the retrieval pipeline and
// render the results. This is the only package aware of transport
// concerns: paths, status codes, and the relative-vs-absolute URL
// contract for the constrained client.

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/catalog"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/history"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/metrics"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/pipeline"
)

type Manager struct {
	Pipeline  *pipeline.Pipeline
	History   *history.Store
	startedAt time.Time
	logger    *log.Entry
}

func NewManager(p *pipeline.Pipeline, h *history.Store) *Manager {
	return &Manager{
		Pipeline:  p,
		History:   h,
		startedAt: time.Now(),
		logger:    log.WithFields(log.Fields{"module": "handlers"}),
	}
}

func (m *Manager) Register(router *gin.Engine) {
	router.GET("/audio", m.GetAudio)
	router.GET("/stream_pcm", m.StreamPCM)
	router.GET("/proxy_audio", m.ProxyAudio)
	router.GET("/proxy_lyric", m.ProxyLyric)
	router.GET("/health", m.Health)
	router.GET("/history", m.GetHistory)
	router.POST("/cache/clear", m.ClearCache)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// GetAudio resolves a query to metadata plus an absolute pointer URL.
func (m *Manager) GetAudio(c *gin.Context) {
	song := c.Query("song")
	artist := c.Query("artist")
	if song == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing song parameter"})
		return
	}

	info, err := m.Pipeline.ResolveAudioPointer(c.Request.Context(), song, artist)
	if err != nil {
		m.renderResolveError(c, song, artist, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title":     info.Title,
		"artist":    info.Artist,
		"audio_url": info.AudioURL,
		"thumbnail": info.Thumbnail,
		"duration":  info.Duration,
	})
}

// StreamPCM resolves a query, pre-warms the cache, and answers with
// relative proxy paths the embedded client prefixes itself.
func (m *Manager) StreamPCM(c *gin.Context) {
	song := c.Query("song")
	artist := c.Query("artist")
	if song == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing song parameter"})
		return
	}

	info, err := m.Pipeline.ResolveAndCacheAudio(c.Request.Context(), song, artist)
	if err != nil {
		m.renderResolveError(c, song, artist, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title":     info.Title,
		"artist":    info.Artist,
		"audio_url": info.AudioURL,
		"lyric_url": info.LyricURL,
		"thumbnail": info.Thumbnail,
		"duration":  info.Duration,
		"language":  info.Language,
	})
}

// ProxyAudio streams the cached (or on-demand fetched) bytes for a track
// id. Range slicing is left to the transport; the header advertises
// support for partial content.
func (m *Manager) ProxyAudio(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing id parameter"})
		return
	}

	data, err := m.Pipeline.ServeAudio(c.Request.Context(), id)
	if err != nil {
		m.logger.Errorf("failed to proxy audio for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to proxy audio"})
		return
	}

	c.Header("Accept-Ranges", "bytes")
	c.Data(http.StatusOK, "audio/mpeg", data)
}

// ProxyLyric renders the LRC document for a track id.
func (m *Manager) ProxyLyric(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing id parameter"})
		return
	}

	text, err := m.Pipeline.Lyrics(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrLyricsUnavailable) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lyrics unavailable"})
			return
		}
		m.logger.Errorf("failed to fetch lyrics for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.String(http.StatusOK, text)
}

func (m *Manager) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"cache_size":     m.Pipeline.CacheSize(),
		"cached_songs":   m.Pipeline.CachedTracks(),
		"uptime_seconds": int(time.Since(m.startedAt).Seconds()),
	})
}

func (m *Manager) GetHistory(c *gin.Context) {
	if m.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := m.History.Recent(limit)
	if err != nil {
		m.logger.Errorf("failed to read history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plays": records})
}

func (m *Manager) ClearCache(c *gin.Context) {
	m.Pipeline.ClearCache()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderResolveError maps pipeline errors to caller-facing responses.
// Bodies stay generic on 500s; upstream detail goes to the log only.
func (m *Manager) renderResolveError(c *gin.Context, song, artist string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrTrackNotFound), errors.Is(err, pipeline.ErrTrackIDMissing):
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("No track found for '%s' by '%s'", song, artist),
		})
	default:
		m.logger.Errorf("resolve failed for %q by %q: %v", song, artist, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
