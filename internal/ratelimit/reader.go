// Package ratelimit throttles upload bandwidth, replacing the teacher's
// shell-out to pv for rate limiting (backend/nosd/pkg/backup/replication.go)
// with an in-process golang.org/x/time/rate limiter.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Reader wraps r, blocking reads so the long-run average throughput never
// exceeds bytesPerSec. A zero bytesPerSec disables throttling.
type Reader struct {
	r       io.Reader
	limiter *rate.Limiter
}

// NewReader returns a throttled reader. burst is the largest chunk allowed
// through without waiting; callers typically pass a multiple of their read
// buffer size.
func NewReader(r io.Reader, bytesPerSec, burst int) *Reader {
	if bytesPerSec <= 0 {
		return &Reader{r: r}
	}
	return &Reader{r: r, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

func (t *Reader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && t.limiter != nil {
		if werr := t.limiter.WaitN(context.Background(), n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
