package mutate

// Deterministic, test-indexed byte mutation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tturner/fuzzrelay/internal/config"
)

var (
	// ErrAllBytesIgnored is returned when a mutation is due but every payload byte is ignored.
	ErrAllBytesIgnored = errors.New("mutate: every payload byte is in the ignored set")
	// ErrDrawLimit is returned when position draws keep landing on ignored bytes.
	ErrDrawLimit = errors.New("mutate: position draw limit reached")
)

// Options configures an Engine.
type Options struct {
	Range   config.TestRange
	Ratio   config.RatioRange
	Ignored []byte
	// Seed salts the per-test master seed. Zero keeps the test index as the seed.
	Seed int64
}

// Report describes one applied mutation.
type Report struct {
	Test      int64
	Count     int
	Positions []int
}

// Engine replaces a ratio-bounded number of payload bytes with pseudo-random
// values. The output depends only on the payload, the test index and the
// configuration, so any test can be reproduced by setting its index.
type Engine struct {
	mu sync.Mutex

	rng     config.TestRange
	ratio   config.RatioRange
	ignored [256]bool
	salt    int64
	test    int64

	master   *rand.Rand
	count    *rand.Rand
	position *rand.Rand
	value    *rand.Rand
}

// New creates an engine positioned at the start of its test range.
func New(opts Options) *Engine {
	e := &Engine{
		rng:   opts.Range,
		ratio: opts.Ratio,
		salt:  opts.Seed,
	}
	for _, b := range opts.Ignored {
		e.ignored[b] = true
	}
	e.Reset()
	return e
}

// Reset rewinds to the configured start and reseeds every stream from fresh entropy.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.test = e.rng.Start
	now := time.Now().UnixNano()
	e.master = rand.New(rand.NewSource(now))
	e.count = rand.New(rand.NewSource(now + 1))
	e.position = rand.New(rand.NewSource(now + 2))
	e.value = rand.New(rand.NewSource(now + 3))
}

// SetTest forces the next mutation to use index.
func (e *Engine) SetTest(index int64) {
	e.mu.Lock()
	e.test = index
	e.mu.Unlock()
}

// Test returns the index the next mutation will use.
func (e *Engine) Test() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.test
}

// Range returns the configured test range.
func (e *Engine) Range() config.TestRange {
	return e.rng
}

// Exhausted reports whether the index has moved past a bounded range end.
func (e *Engine) Exhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.rng.Unbounded && e.test > e.rng.End
}

// IsIgnored reports whether b is never chosen as a mutation target.
func (e *Engine) IsIgnored(b byte) bool {
	return e.ignored[b]
}

// Mutate returns a mutated copy of payload and advances the test index.
func (e *Engine) Mutate(payload []byte) ([]byte, error) {
	out, _, err := e.MutateWithReport(payload)
	return out, err
}

// MutateWithReport is Mutate plus the positions written and the index used.
func (e *Engine) MutateWithReport(payload []byte) ([]byte, Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]byte, len(payload))
	copy(out, payload)
	report := Report{Test: e.test}

	minBytes := int(math.Floor(e.ratio.Min * float64(len(payload))))
	maxBytes := int(math.Floor(e.ratio.Max * float64(len(payload))))

	e.master.Seed(e.masterSeed())
	seed := seedBits(e.master.Float64())

	n := minBytes
	if minBytes != maxBytes {
		e.count.Seed(seed)
		n = minBytes + e.count.Intn(maxBytes-minBytes)
	}

	if n > 0 && e.allIgnored(out) {
		return nil, report, fmt.Errorf("test %d: %w", e.test, ErrAllBytesIgnored)
	}

	e.position.Seed(seed)
	e.value.Seed(seed)

	drawLimit := 64*len(out) + 1024
	draws := 0
	for report.Count < n {
		if draws >= drawLimit {
			return nil, report, fmt.Errorf("test %d after %d draws: %w", e.test, draws, ErrDrawLimit)
		}
		draws++
		pos := e.position.Intn(len(out))
		if e.ignored[out[pos]] {
			continue
		}
		out[pos] = byte(e.value.Intn(256))
		report.Positions = append(report.Positions, pos)
		report.Count++
	}

	e.test++
	return out, report, nil
}

func (e *Engine) masterSeed() int64 {
	if e.salt == 0 {
		return e.test
	}
	return e.test ^ (e.salt << 32)
}

func (e *Engine) allIgnored(payload []byte) bool {
	for _, b := range payload {
		if !e.ignored[b] {
			return false
		}
	}
	return true
}

// seedBits maps a float seed onto the int64 seed space through its IEEE-754 bits.
func seedBits(f float64) int64 {
	return int64(math.Float64bits(f))
}
