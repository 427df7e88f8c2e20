// Package speaker implements an audio output on the local sound card.
//
// Streams are downloaded into memory completely before playback starts,
// which keeps seeking cheap at the cost of a delayed start.
package speaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// SampleRate is the rate the sound card is driven at.
	SampleRate = 44100

	maxStreamSize   = 64 << 20
	downloadTimeout = time.Minute
	reportInterval  = 250 * time.Millisecond
)

// download fetches the complete stream at url.
func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not download stream: %s", res.Status)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxStreamSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxStreamSize {
		return nil, fmt.Errorf("stream exceeds %d bytes", maxStreamSize)
	}
	return data, nil
}

// gain converts a linear volume in [0, 1] to the exponent of a base 2
// volume effect. The second return value is set for silence.
func gain(vol float64) (float64, bool) {
	if vol <= 0 {
		return 0, true
	}
	return math.Log2(math.Min(vol, 1)), false
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
