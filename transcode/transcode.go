// Package transcode shrinks raw upstream audio under a hard byte ceiling.
// The only guarantee is that output never exceeds the cap; quality is
// best-effort and truncation may cut mid-frame.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Outcome names which step of the shrink strategy produced the output.
type Outcome string

const (
	// OutcomeEncoded: re-encode succeeded and fit under the cap.
	OutcomeEncoded Outcome = "encoded"
	// OutcomeEncodedTruncated: re-encode succeeded but was still over
	// the cap and got cut to size.
	OutcomeEncodedTruncated Outcome = "encoded_truncated"
	// OutcomeFallback: encoding failed; the original bytes fit.
	OutcomeFallback Outcome = "fallback"
	// OutcomeFallbackTruncated: encoding failed and the original bytes
	// were cut to size.
	OutcomeFallbackTruncated Outcome = "fallback_truncated"
)

const encodeTimeout = 30 * time.Second

type runFunc func(ctx context.Context, raw []byte, bitrate, sampleRate int) ([]byte, error)

// Transcoder re-encodes audio to a low-bitrate mono MP3 stream. The
// encode step is injectable so tests do not need ffmpeg on PATH.
type Transcoder struct {
	bitrate    int
	sampleRate int
	run        runFunc
	logger     *log.Entry
}

func New(bitrate, sampleRate int) *Transcoder {
	return &Transcoder{
		bitrate:    bitrate,
		sampleRate: sampleRate,
		run:        runFFmpeg,
		logger:     log.WithFields(log.Fields{"module": "transcode"}),
	}
}

// Compress applies the shrink strategy in order: re-encode, fall back to
// the original bytes on encode failure, truncate whatever survives to
// maxBytes. It never fails; the worst case is truncated original bytes.
func (t *Transcoder) Compress(ctx context.Context, raw []byte, maxBytes int) ([]byte, Outcome) {
	span := sentry.StartSpan(ctx, "transcode.compress")
	span.Description = "Re-encode audio under byte ceiling"
	span.SetData("input_bytes", len(raw))
	defer span.Finish()

	encoded, err := t.run(ctx, raw, t.bitrate, t.sampleRate)
	if err != nil {
		t.logger.Warnf("encode failed, falling back to original bytes: %v", err)
		sentry.CaptureException(err)
		out, truncated := capBytes(raw, maxBytes)
		outcome := OutcomeFallback
		if truncated {
			outcome = OutcomeFallbackTruncated
			t.logger.Warnf("original bytes over cap, truncated %d -> %d", len(raw), len(out))
		}
		span.SetTag("outcome", string(outcome))
		return out, outcome
	}

	out, truncated := capBytes(encoded, maxBytes)
	outcome := OutcomeEncoded
	if truncated {
		outcome = OutcomeEncodedTruncated
		t.logger.Warnf("encoded stream over cap, truncated %d -> %d", len(encoded), len(out))
	}
	t.logger.Debugf("compressed %d -> %d bytes (%s)", len(raw), len(out), outcome)
	span.SetTag("outcome", string(outcome))
	span.SetData("output_bytes", len(out))
	return out, outcome
}

func capBytes(data []byte, maxBytes int) ([]byte, bool) {
	if maxBytes > 0 && len(data) > maxBytes {
		return data[:maxBytes], true
	}
	return data, false
}

func runFFmpeg(ctx context.Context, raw []byte, bitrate, sampleRate int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "mp3",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", bitrate/1000),
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-loglevel", "error",
		"pipe:1")
	cmd.Stdin = bytes.NewReader(raw)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %v (%s)", err, stderr.String())
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return output, nil
}
