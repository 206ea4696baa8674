package shaping

// Write shaping for relayed payloads: latency, chunked delivery and a bandwidth cap.

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/tturner/fuzzrelay/internal/config"
)

// Step is one write in a delivery plan.
type Step struct {
	Data  []byte
	Delay time.Duration // wait before writing Data
}

// Shaper paces writes. A zero-value section yields a pass-through shaper.
type Shaper struct {
	mu sync.Mutex

	latency         time.Duration
	jitter          time.Duration
	chunkWrites     bool
	chunkMin        int
	chunkMax        int
	interChunkDelay time.Duration

	bucket *ratelimit.Bucket
	rng    *rand.Rand
	sleep  func(time.Duration)
}

// New builds a shaper. seed 0 draws one from the clock.
func New(cfg config.ShapingSection, seed int64) *Shaper {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	chunkMin := cfg.ChunkMin
	chunkMax := cfg.ChunkMax
	if chunkMin == 0 {
		chunkMin = 1
	}
	if chunkMax == 0 {
		chunkMax = 4
	}
	if chunkMax < chunkMin {
		chunkMax = chunkMin
	}

	s := &Shaper{
		latency:         time.Duration(cfg.LatencyMs) * time.Millisecond,
		jitter:          time.Duration(cfg.JitterMs) * time.Millisecond,
		chunkWrites:     cfg.ChunkWrites,
		chunkMin:        chunkMin,
		chunkMax:        chunkMax,
		interChunkDelay: time.Duration(cfg.InterChunkDelayMs) * time.Millisecond,
		rng:             rand.New(rand.NewSource(seed)),
		sleep:           time.Sleep,
	}
	if cfg.BandwidthBytesPerSec > 0 {
		s.bucket = ratelimit.NewBucketWithRate(float64(cfg.BandwidthBytesPerSec), cfg.BandwidthBytesPerSec)
	}
	return s
}

// Enabled reports whether the shaper changes anything about a write.
func (s *Shaper) Enabled() bool {
	return s != nil && (s.latency > 0 || s.jitter > 0 || s.chunkWrites || s.bucket != nil)
}

// Plan splits payload into delivery steps. The first step carries the
// latency plus jitter; later steps carry the inter-chunk delay.
func (s *Shaper) Plan(payload []byte) []Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.latency
	if s.jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.jitter) + 1))
	}

	chunks := 1
	if s.chunkWrites {
		chunks = s.chunkMin
		if s.chunkMax > s.chunkMin {
			chunks = s.chunkMin + s.rng.Intn(s.chunkMax-s.chunkMin+1)
		}
	}
	if chunks <= 1 || len(payload) <= 1 {
		return []Step{{Data: payload, Delay: delay}}
	}

	size := (len(payload) + chunks - 1) / chunks
	steps := make([]Step, 0, chunks)
	for offset := 0; offset < len(payload); offset += size {
		end := offset + size
		if end > len(payload) {
			end = len(payload)
		}
		step := Step{Data: payload[offset:end], Delay: s.interChunkDelay}
		if offset == 0 {
			step.Delay = delay
		}
		steps = append(steps, step)
	}
	return steps
}

// Write delivers payload to w according to a fresh plan.
func (s *Shaper) Write(w io.Writer, payload []byte) error {
	if !s.Enabled() {
		_, err := w.Write(payload)
		return err
	}
	for _, step := range s.Plan(payload) {
		if step.Delay > 0 {
			s.sleep(step.Delay)
		}
		if s.bucket != nil && len(step.Data) > 0 {
			s.bucket.Wait(int64(len(step.Data)))
		}
		if _, err := w.Write(step.Data); err != nil {
			return err
		}
	}
	return nil
}
