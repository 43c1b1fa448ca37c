package transcode

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func fakeEncoder(out []byte, err error) runFunc {
	return func(ctx context.Context, raw []byte, bitrate, sampleRate int) ([]byte, error) {
		return out, err
	}
}

func newTestTranscoder(run runFunc) *Transcoder {
	t := New(32000, 16000)
	t.run = run
	return t
}

func TestCompressOutcomes(t *testing.T) {
	raw := bytes.Repeat([]byte("r"), 100)

	tests := []struct {
		name        string
		run         runFunc
		maxBytes    int
		wantLen     int
		wantOutcome Outcome
	}{
		{
			name:        "encoded_fits",
			run:         fakeEncoder(bytes.Repeat([]byte("e"), 40), nil),
			maxBytes:    50,
			wantLen:     40,
			wantOutcome: OutcomeEncoded,
		},
		{
			name:        "encoded_still_over_cap",
			run:         fakeEncoder(bytes.Repeat([]byte("e"), 80), nil),
			maxBytes:    50,
			wantLen:     50,
			wantOutcome: OutcomeEncodedTruncated,
		},
		{
			name:        "encode_fails_original_fits",
			run:         fakeEncoder(nil, errors.New("boom")),
			maxBytes:    200,
			wantLen:     100,
			wantOutcome: OutcomeFallback,
		},
		{
			name:        "encode_fails_original_truncated",
			run:         fakeEncoder(nil, errors.New("boom")),
			maxBytes:    50,
			wantLen:     50,
			wantOutcome: OutcomeFallbackTruncated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, outcome := newTestTranscoder(tt.run).Compress(context.Background(), raw, tt.maxBytes)
			if len(out) != tt.wantLen {
				t.Errorf("len(out) = %d; want %d", len(out), tt.wantLen)
			}
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %s; want %s", outcome, tt.wantOutcome)
			}
		})
	}
}

func TestCompressNeverExceedsCap(t *testing.T) {
	caps := []int{1, 7, 50, 99, 100, 1000}
	raw := bytes.Repeat([]byte("x"), 100)

	runs := map[string]runFunc{
		"encode_ok":   fakeEncoder(bytes.Repeat([]byte("y"), 300), nil),
		"encode_fail": fakeEncoder(nil, errors.New("no codec")),
	}
	for name, run := range runs {
		tr := newTestTranscoder(run)
		for _, max := range caps {
			out, _ := tr.Compress(context.Background(), raw, max)
			if len(out) > max {
				t.Errorf("%s: len(out) = %d exceeds cap %d", name, len(out), max)
			}
		}
	}
}

func TestCompressTruncatesToExactPrefix(t *testing.T) {
	encoded := []byte("0123456789")
	tr := newTestTranscoder(fakeEncoder(encoded, nil))

	out, outcome := tr.Compress(context.Background(), []byte("raw"), 4)
	if string(out) != "0123" {
		t.Errorf("out = %q; want the first 4 bytes", out)
	}
	if outcome != OutcomeEncodedTruncated {
		t.Errorf("outcome = %s; want %s", outcome, OutcomeEncodedTruncated)
	}
}
