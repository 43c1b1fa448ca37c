package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/catalog"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/trackcache"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/transcode"
)

type fakeCatalog struct {
	tracks     []catalog.Track
	audio      []byte
	fetchErr   error
	fetchDelay time.Duration
	lyricMeta  *catalog.LyricMeta
	lyricErr   error

	searchCalls int32
	fetchCalls  int32

	mu        sync.Mutex
	lastQuery string
}

func (f *fakeCatalog) Search(ctx context.Context, query string) []catalog.Track {
	atomic.AddInt32(&f.searchCalls, 1)
	f.mu.Lock()
	f.lastQuery = query
	f.mu.Unlock()
	return f.tracks
}

func (f *fakeCatalog) LastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeCatalog) FetchRawAudio(ctx context.Context, trackID string) ([]byte, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.audio, nil
}

func (f *fakeCatalog) FetchLyricMeta(ctx context.Context, trackID string) (*catalog.LyricMeta, error) {
	if f.lyricErr != nil {
		return nil, f.lyricErr
	}
	return f.lyricMeta, nil
}

func (f *fakeCatalog) FetchLyricFile(ctx context.Context, fileURL string) (string, error) {
	return "file lyrics", nil
}

// fakeCompressor prefixes output so tests can tell compressed bytes from
// raw ones, then enforces the cap like the real transcoder.
type fakeCompressor struct{}

func (fakeCompressor) Compress(ctx context.Context, raw []byte, maxBytes int) ([]byte, transcode.Outcome) {
	out := append([]byte("c:"), raw...)
	if maxBytes > 0 && len(out) > maxBytes {
		return out[:maxBytes], transcode.OutcomeEncodedTruncated
	}
	return out, transcode.OutcomeEncoded
}

type fakeHistory struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeHistory) RecordPlay(trackID, title, artist, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, trackID)
	return nil
}

var testTrack = catalog.Track{
	ID:        "abc123",
	Title:     "Ten Bai Hat",
	Artist:    "Ca Si",
	Thumbnail: "http://img/1.jpg",
	Duration:  213,
}

func newTestPipeline(cat *fakeCatalog) *Pipeline {
	return New(cat, fakeCompressor{}, trackcache.New(10), 1024, "http://proxy.local:8080")
}

func TestResolveAudioPointer(t *testing.T) {
	cat := &fakeCatalog{tracks: []catalog.Track{testTrack}}
	p := newTestPipeline(cat)

	got, err := p.ResolveAudioPointer(context.Background(), "ten bai hat", "ca si")
	if err != nil {
		t.Fatalf("ResolveAudioPointer() error = %v", err)
	}

	if got.AudioURL != "http://proxy.local:8080/proxy_audio?id=abc123" {
		t.Errorf("AudioURL = %q; want absolute pointer URL", got.AudioURL)
	}
	if !strings.HasPrefix(got.AudioURL, "http") {
		t.Error("pointer URL must carry a scheme")
	}
	if got.Title != "Ten Bai Hat" || got.Artist != "Ca Si" || got.Duration != 213 {
		t.Errorf("unexpected metadata: %+v", got)
	}
	if cat.fetchCalls != 0 {
		t.Error("pointer path must not fetch audio")
	}
	if cat.LastQuery() != "ten bai hat ca si" {
		t.Errorf("search query = %q", cat.LastQuery())
	}
}

func TestResolveAudioPointerNotFound(t *testing.T) {
	p := newTestPipeline(&fakeCatalog{})
	_, err := p.ResolveAudioPointer(context.Background(), "nothing", "nobody")
	if !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "nothing") || !strings.Contains(err.Error(), "nobody") {
		t.Errorf("error should name the requested song/artist: %v", err)
	}
}

func TestResolveAudioPointerIDMissing(t *testing.T) {
	cat := &fakeCatalog{tracks: []catalog.Track{{Title: "No ID"}}}
	p := newTestPipeline(cat)
	_, err := p.ResolveAudioPointer(context.Background(), "x", "y")
	if !errors.Is(err, ErrTrackIDMissing) {
		t.Errorf("expected ErrTrackIDMissing, got %v", err)
	}
}

func TestFirstCandidateWins(t *testing.T) {
	other := catalog.Track{ID: "zzz", Title: "Exact Match"}
	cat := &fakeCatalog{tracks: []catalog.Track{testTrack, other}}
	p := newTestPipeline(cat)

	got, err := p.ResolveAudioPointer(context.Background(), "Exact Match", "")
	if err != nil {
		t.Fatalf("ResolveAudioPointer() error = %v", err)
	}
	if got.Title != testTrack.Title {
		t.Errorf("got %q; the first upstream candidate is authoritative", got.Title)
	}
}

func TestResolveAndCacheAudio(t *testing.T) {
	cat := &fakeCatalog{tracks: []catalog.Track{testTrack}, audio: []byte("raw-audio")}
	history := &fakeHistory{}
	p := newTestPipeline(cat).WithHistory(history)

	got, err := p.ResolveAndCacheAudio(context.Background(), "ten bai hat", "ca si")
	if err != nil {
		t.Fatalf("ResolveAndCacheAudio() error = %v", err)
	}

	if got.AudioURL != "/proxy_audio?id=abc123" {
		t.Errorf("AudioURL = %q; want relative path", got.AudioURL)
	}
	if got.LyricURL != "/proxy_lyric?id=abc123" {
		t.Errorf("LyricURL = %q; want relative path", got.LyricURL)
	}
	for _, u := range []string{got.AudioURL, got.LyricURL} {
		if !strings.HasPrefix(u, "/") || strings.Contains(u, "://") {
			t.Errorf("%q must be relative, never carry a scheme", u)
		}
	}

	// Pre-warm stored the compressed bytes.
	data, err := p.ServeAudio(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ServeAudio() error = %v", err)
	}
	if string(data) != "c:raw-audio" {
		t.Errorf("cached bytes = %q; want compressed form", data)
	}
	if cat.fetchCalls != 1 {
		t.Errorf("fetchCalls = %d; the serve after pre-warm must hit the cache", cat.fetchCalls)
	}

	if len(history.records) != 1 || history.records[0] != "abc123" {
		t.Errorf("history records = %v", history.records)
	}
}

func TestResolveAndCacheAudioFetchFailureSkipsWarm(t *testing.T) {
	cat := &fakeCatalog{
		tracks:   []catalog.Track{testTrack},
		fetchErr: catalog.ErrUpstreamFetch,
	}
	p := newTestPipeline(cat)

	got, err := p.ResolveAndCacheAudio(context.Background(), "x", "y")
	if err != nil {
		t.Fatalf("a failed pre-warm must not fail the request: %v", err)
	}
	if got.AudioURL != "/proxy_audio?id=abc123" {
		t.Errorf("AudioURL = %q", got.AudioURL)
	}
	if p.CacheSize() != 0 {
		t.Errorf("cache size = %d; failed fetch must not insert", p.CacheSize())
	}
}

func TestServeAudioIdempotent(t *testing.T) {
	cat := &fakeCatalog{audio: []byte("direct-bytes")}
	p := newTestPipeline(cat)

	first, err := p.ServeAudio(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ServeAudio() error = %v", err)
	}
	second, err := p.ServeAudio(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ServeAudio() error = %v", err)
	}

	if string(first) != string(second) {
		t.Error("repeated serves must return byte-identical output")
	}
	if cat.fetchCalls != 1 {
		t.Errorf("fetchCalls = %d; want exactly one upstream fetch", cat.fetchCalls)
	}
	// Direct-serve path stores raw bytes, bypassing the transcoder.
	if string(first) != "direct-bytes" {
		t.Errorf("direct path must not compress, got %q", first)
	}
}

func TestServeAudioUpstreamFailure(t *testing.T) {
	cat := &fakeCatalog{fetchErr: catalog.ErrUpstreamFetch}
	p := newTestPipeline(cat)

	_, err := p.ServeAudio(context.Background(), "abc123")
	if !errors.Is(err, catalog.ErrUpstreamFetch) {
		t.Errorf("expected ErrUpstreamFetch, got %v", err)
	}
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	cat := &fakeCatalog{
		tracks:     []catalog.Track{testTrack},
		audio:      []byte("raw"),
		fetchDelay: 50 * time.Millisecond,
	}
	p := newTestPipeline(cat)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.ResolveAndCacheAudio(context.Background(), "ten bai hat", "ca si")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&cat.fetchCalls); got != 1 {
		t.Errorf("fetchCalls = %d; concurrent misses must share one fetch", got)
	}
	if p.CacheSize() != 1 {
		t.Errorf("cache size = %d; want exactly one entry", p.CacheSize())
	}
}

func TestLyrics(t *testing.T) {
	cat := &fakeCatalog{
		lyricMeta: &catalog.LyricMeta{
			Sentences: []catalog.Sentence{
				{Words: []catalog.Word{{StartTime: 1500, Data: "hi"}}},
			},
		},
	}
	p := newTestPipeline(cat)

	text, err := p.Lyrics(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Lyrics() error = %v", err)
	}
	if text != "[00:01.50]hi\n" {
		t.Errorf("Lyrics() = %q", text)
	}
}

func TestLyricsUnavailable(t *testing.T) {
	cat := &fakeCatalog{lyricErr: catalog.ErrLyricsUnavailable}
	p := newTestPipeline(cat)

	_, err := p.Lyrics(context.Background(), "abc123")
	if !errors.Is(err, catalog.ErrLyricsUnavailable) {
		t.Errorf("expected ErrLyricsUnavailable, got %v", err)
	}
}

func TestLinkResolverRewritesQuery(t *testing.T) {
	cat := &fakeCatalog{tracks: []catalog.Track{testTrack}}
	p := newTestPipeline(cat).WithLinkResolver(func(song string) (string, string, error) {
		if song == "https://open.spotify.com/track/xyz" {
			return "Resolved Title", "Resolved Artist", nil
		}
		return "", "", errors.New("not a link")
	})

	if _, err := p.ResolveAudioPointer(context.Background(), "https://open.spotify.com/track/xyz", ""); err != nil {
		t.Fatalf("ResolveAudioPointer() error = %v", err)
	}
	if cat.LastQuery() != "Resolved Title Resolved Artist" {
		t.Errorf("search query = %q; want link-resolved text", cat.LastQuery())
	}

	// Plain text passes through untouched.
	if _, err := p.ResolveAudioPointer(context.Background(), "plain song", "someone"); err != nil {
		t.Fatalf("ResolveAudioPointer() error = %v", err)
	}
	if cat.LastQuery() != "plain song someone" {
		t.Errorf("search query = %q; want pass-through text", cat.LastQuery())
	}
}

func TestClearCache(t *testing.T) {
	cat := &fakeCatalog{audio: []byte("x")}
	p := newTestPipeline(cat)

	if _, err := p.ServeAudio(context.Background(), "a"); err != nil {
		t.Fatalf("ServeAudio() error = %v", err)
	}
	if p.CacheSize() != 1 {
		t.Fatalf("cache size = %d", p.CacheSize())
	}
	p.ClearCache()
	if p.CacheSize() != 0 {
		t.Errorf("cache size after clear = %d", p.CacheSize())
	}
	if len(p.CachedTracks()) != 0 {
		t.Errorf("CachedTracks() = %v", p.CachedTracks())
	}
}
