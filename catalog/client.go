package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrUpstreamFetch covers timeouts, non-2xx responses and network
	// failures while pulling raw audio from the upstream.
	ErrUpstreamFetch = errors.New("upstream audio fetch failed")
	// ErrLyricsUnavailable means the upstream has no lyric representation
	// for the track. It is an expected condition, not a transport error.
	ErrLyricsUnavailable = errors.New("lyrics unavailable")
)

// Client wraps the upstream catalog's search, stream and lyric endpoints.
// It holds no state beyond the configured HTTP clients.
type Client struct {
	baseURL      string
	searchClient *http.Client
	fetchClient  *http.Client
	logger       *log.Entry
}

func NewClient(baseURL string, searchTimeout, fetchTimeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		searchClient: &http.Client{Timeout: searchTimeout},
		// Redirects are followed by default; upstream stream URLs
		// usually bounce through a CDN.
		fetchClient: &http.Client{Timeout: fetchTimeout},
		logger: log.WithFields(log.Fields{
			"module": "catalog",
		}),
	}
}

// Search issues an upstream text search. Any failure (transport, non-2xx,
// malformed payload) collapses to an empty result so callers only have to
// handle "no results".
func (c *Client) Search(ctx context.Context, query string) []Track {
	logger := c.logger.WithField("function", "Search")

	span := sentry.StartSpan(ctx, "catalog.search")
	span.Description = "Search upstream catalog"
	span.SetTag("query", query)
	defer span.Finish()

	u := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		logger.Errorf("error building search request: %v", err)
		span.Status = sentry.SpanStatusInternalError
		return []Track{}
	}

	resp, err := c.searchClient.Do(req)
	if err != nil {
		logger.Errorf("error querying upstream: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return []Track{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Errorf("upstream search returned status %d for %q", resp.StatusCode, query)
		span.Status = sentry.SpanStatusInternalError
		return []Track{}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Errorf("error decoding search response: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return []Track{}
	}

	if payload.Err != 0 {
		logger.Warnf("upstream search error code %d for %q", payload.Err, query)
		return []Track{}
	}

	tracks := make([]Track, 0, len(payload.Data.Songs))
	for _, song := range payload.Data.Songs {
		tracks = append(tracks, Track{
			ID:        song.EncodeID,
			Title:     song.Title,
			Artist:    song.ArtistsNames,
			Thumbnail: song.Thumbnail,
			Duration:  song.Duration,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(tracks))
	logger.Tracef("found %d tracks for %q", len(tracks), query)
	return tracks
}

// FetchRawAudio collects the full encoded audio for a resolved track id.
// The fetch client carries the generous timeout; upstream CDN latency is
// unpredictable.
func (c *Client) FetchRawAudio(ctx context.Context, trackID string) ([]byte, error) {
	logger := c.logger.WithFields(log.Fields{
		"function": "FetchRawAudio",
		"track_id": trackID,
	})

	span := sentry.StartSpan(ctx, "catalog.fetch_audio")
	span.Description = "Fetch raw audio from upstream"
	span.SetTag("track_id", trackID)
	defer span.Finish()

	u := fmt.Sprintf("%s/song/stream?id=%s", c.baseURL, url.QueryEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		logger.Errorf("error fetching audio: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Errorf("upstream stream returned status %d", resp.StatusCode)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Errorf("error reading audio body: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("bytes", len(data))
	logger.Debugf("fetched %d bytes", len(data))
	return data, nil
}

// FetchLyricMeta returns the raw lyric representation for a track. An
// upstream payload with neither a file URL nor timed sentences yields
// ErrLyricsUnavailable.
func (c *Client) FetchLyricMeta(ctx context.Context, trackID string) (*LyricMeta, error) {
	logger := c.logger.WithFields(log.Fields{
		"function": "FetchLyricMeta",
		"track_id": trackID,
	})

	u := fmt.Sprintf("%s/lyric?id=%s", c.baseURL, url.QueryEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.searchClient.Do(req)
	if err != nil {
		logger.Errorf("error fetching lyric meta: %v", err)
		sentry.CaptureException(err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warnf("upstream lyric returned status %d", resp.StatusCode)
		return nil, ErrLyricsUnavailable
	}

	var meta LyricMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		logger.Errorf("error decoding lyric response: %v", err)
		return nil, err
	}

	if !meta.HasLyrics() {
		return nil, ErrLyricsUnavailable
	}

	return &meta, nil
}

// FetchLyricFile dereferences a plain-text lyric file URL and returns its
// contents unmodified.
func (c *Client) FetchLyricFile(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.searchClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lyric file returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
