// Package lyrics renders upstream lyric payloads as a single LRC-style
// timed-text document for the embedded client.
package lyrics

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/catalog"
)

// FileFetcher dereferences a plain-text lyric file URL. Satisfied by
// catalog.Client.
type FileFetcher interface {
	FetchLyricFile(ctx context.Context, fileURL string) (string, error)
}

// Format converts a raw lyric representation into LRC text. A file
// reference is dereferenced and returned unmodified; timed sentences are
// flattened to one "[MM:SS.CC]word" line per word. An empty
// representation yields catalog.ErrLyricsUnavailable.
func Format(ctx context.Context, meta *catalog.LyricMeta, fetcher FileFetcher) (string, error) {
	if !meta.HasLyrics() {
		return "", catalog.ErrLyricsUnavailable
	}

	if meta.File != "" {
		text, err := fetcher.FetchLyricFile(ctx, meta.File)
		if err != nil {
			log.WithField("module", "lyrics").Errorf("error fetching lyric file: %v", err)
			return "", err
		}
		return text, nil
	}

	var b strings.Builder
	for _, sentence := range meta.Sentences {
		for _, word := range sentence.Words {
			b.WriteString(timestamp(word.StartTime))
			b.WriteString(word.Data)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// timestamp renders milliseconds as the LRC tag [MM:SS.CC].
func timestamp(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	minutes := millis / 60000
	seconds := (millis / 1000) % 60
	centis := (millis % 1000) / 10
	return fmt.Sprintf("[%02d:%02d.%02d]", minutes, seconds, centis)
}
