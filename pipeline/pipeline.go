// Package pipeline orchestrates resolve -> fetch -> transcode -> cache
// -> serve. It is the sole mutator of the track cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/catalog"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/lyrics"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/metrics"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/trackcache"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/transcode"
)

var (
	// ErrTrackNotFound: the upstream search returned no candidates.
	ErrTrackNotFound = errors.New("track not found")
	// ErrTrackIDMissing: the first candidate carried no usable id.
	ErrTrackIDMissing = errors.New("track id missing")
)

// Catalog is the upstream boundary the pipeline depends on. Satisfied by
// catalog.Client; substituted in tests.
type Catalog interface {
	Search(ctx context.Context, query string) []catalog.Track
	FetchRawAudio(ctx context.Context, trackID string) ([]byte, error)
	FetchLyricMeta(ctx context.Context, trackID string) (*catalog.LyricMeta, error)
	FetchLyricFile(ctx context.Context, fileURL string) (string, error)
}

// Compressor shrinks raw audio under the byte ceiling.
type Compressor interface {
	Compress(ctx context.Context, raw []byte, maxBytes int) ([]byte, transcode.Outcome)
}

// HistoryRecorder logs resolved tracks. Optional; a nil recorder is a
// no-op.
type HistoryRecorder interface {
	RecordPlay(trackID, title, artist, query string) error
}

// LinkResolver turns a pasted track link (e.g. a Spotify URL) into a
// title/artist pair before the catalog search. Optional.
type LinkResolver func(song string) (title string, artist string, err error)

// AudioPointer is the metadata-only answer for /audio: an absolute URL
// the caller dereferences later.
type AudioPointer struct {
	Title     string
	Artist    string
	AudioURL  string
	Thumbnail string
	Duration  int
}

// StreamInfo is the answer for /stream_pcm: relative paths the
// constrained client prefixes with its own base address.
type StreamInfo struct {
	Title     string
	Artist    string
	AudioURL  string
	LyricURL  string
	Thumbnail string
	Duration  int
	Language  string
}

type Pipeline struct {
	catalog       Catalog
	transcoder    Compressor
	cache         *trackcache.Cache
	history       HistoryRecorder
	resolveLink   LinkResolver
	maxChunkBytes int
	publicBaseURL string

	// flight coalesces concurrent cache misses per track id so only one
	// upstream fetch runs at a time for a given track.
	flight singleflight.Group

	logger *log.Entry
}

func New(cat Catalog, tr Compressor, cache *trackcache.Cache, maxChunkBytes int, publicBaseURL string) *Pipeline {
	return &Pipeline{
		catalog:       cat,
		transcoder:    tr,
		cache:         cache,
		maxChunkBytes: maxChunkBytes,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        log.WithFields(log.Fields{"module": "pipeline"}),
	}
}

// WithHistory attaches a play-history recorder.
func (p *Pipeline) WithHistory(h HistoryRecorder) *Pipeline {
	p.history = h
	return p
}

// WithLinkResolver attaches a track-link resolver.
func (p *Pipeline) WithLinkResolver(r LinkResolver) *Pipeline {
	p.resolveLink = r
	return p
}

// ResolveAudioPointer resolves a query to track metadata plus an
// absolute pointer URL. It never fetches or caches audio.
func (p *Pipeline) ResolveAudioPointer(ctx context.Context, song, artist string) (*AudioPointer, error) {
	track, err := p.resolveTrack(ctx, song, artist)
	if err != nil {
		return nil, err
	}

	return &AudioPointer{
		Title:     track.Title,
		Artist:    track.Artist,
		AudioURL:  fmt.Sprintf("%s/proxy_audio?id=%s", p.publicBaseURL, track.ID),
		Thumbnail: track.Thumbnail,
		Duration:  track.Duration,
	}, nil
}

// ResolveAndCacheAudio resolves a query, pre-warms the cache with
// compressed audio on a miss, and returns relative proxy paths. A failed
// pre-warm fetch skips the warm-up for that track instead of failing the
// request; /proxy_audio will fetch on demand.
func (p *Pipeline) ResolveAndCacheAudio(ctx context.Context, song, artist string) (*StreamInfo, error) {
	track, err := p.resolveTrack(ctx, song, artist)
	if err != nil {
		return nil, err
	}

	logger := p.logger.WithField("track_id", track.ID)

	if _, ok := p.cache.Get(track.ID); ok {
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
		if _, err := p.fetchCompressed(ctx, track.ID); err != nil {
			// Skip the pre-warm; the proxy path fetches on demand.
			logger.Warnf("pre-warm fetch failed for %q by %q: %v", song, artist, err)
		}
	}

	if p.history != nil {
		if err := p.history.RecordPlay(track.ID, track.Title, track.Artist, strings.TrimSpace(song+" "+artist)); err != nil {
			logger.Warnf("failed to record play: %v", err)
		}
	}

	return &StreamInfo{
		Title:     track.Title,
		Artist:    track.Artist,
		AudioURL:  "/proxy_audio?id=" + track.ID,
		LyricURL:  "/proxy_lyric?id=" + track.ID,
		Thumbnail: track.Thumbnail,
		Duration:  track.Duration,
		Language:  "vi",
	}, nil
}

// ServeAudio returns playable bytes for a track id: cached bytes when
// present, otherwise an on-demand raw fetch inserted uncompressed. The
// direct path trades the size guarantee for latency.
func (p *Pipeline) ServeAudio(ctx context.Context, trackID string) ([]byte, error) {
	if data, ok := p.cache.Get(trackID); ok {
		metrics.CacheHits.Inc()
		return data, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := p.flight.Do(trackID, func() (interface{}, error) {
		// A concurrent flight may have filled the cache already.
		if data, ok := p.cache.Get(trackID); ok {
			return data, nil
		}
		raw, err := p.catalog.FetchRawAudio(ctx, trackID)
		if err != nil {
			metrics.UpstreamFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.UpstreamFetches.WithLabelValues("ok").Inc()
		p.cache.Put(trackID, raw)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Lyrics fetches and formats the LRC document for a track id.
func (p *Pipeline) Lyrics(ctx context.Context, trackID string) (string, error) {
	meta, err := p.catalog.FetchLyricMeta(ctx, trackID)
	if err != nil {
		return "", err
	}
	return lyrics.Format(ctx, meta, p.catalog)
}

// CacheSize and CachedTracks back the health endpoint.
func (p *Pipeline) CacheSize() int { return p.cache.Size() }

func (p *Pipeline) CachedTracks() []string { return p.cache.Keys() }

// ClearCache drops every cached entry.
func (p *Pipeline) ClearCache() { p.cache.Clear() }

// resolveTrack maps a free-text (or link) query to the first upstream
// candidate. First candidate wins; no re-ranking.
func (p *Pipeline) resolveTrack(ctx context.Context, song, artist string) (*catalog.Track, error) {
	if p.resolveLink != nil {
		if title, linkArtist, err := p.resolveLink(song); err == nil {
			song, artist = title, linkArtist
		}
	}

	query := strings.TrimSpace(song + " " + artist)

	metrics.UpstreamSearches.Inc()
	tracks := p.catalog.Search(ctx, query)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: %q by %q", ErrTrackNotFound, song, artist)
	}

	track := tracks[0]
	if track.ID == "" {
		return nil, fmt.Errorf("%w: %q by %q", ErrTrackIDMissing, song, artist)
	}
	return &track, nil
}

// fetchCompressed runs the miss path (fetch, compress, insert) behind the
// per-key flight so concurrent misses share one upstream round trip.
func (p *Pipeline) fetchCompressed(ctx context.Context, trackID string) ([]byte, error) {
	v, err, shared := p.flight.Do(trackID, func() (interface{}, error) {
		if data, ok := p.cache.Get(trackID); ok {
			return data, nil
		}

		raw, err := p.catalog.FetchRawAudio(ctx, trackID)
		if err != nil {
			metrics.UpstreamFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.UpstreamFetches.WithLabelValues("ok").Inc()

		compressed, outcome := p.transcoder.Compress(ctx, raw, p.maxChunkBytes)
		metrics.TranscodeOutcomes.WithLabelValues(string(outcome)).Inc()

		p.cache.Put(trackID, compressed)
		return compressed, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debugf("coalesced concurrent fetch for %s", trackID)
	}
	return v.([]byte), nil
}
