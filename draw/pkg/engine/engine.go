// Package engine selects lottery winners by uniform random sampling without
// replacement.
package engine

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

type quotaKind int

const (
	quotaFixed quotaKind = iota
	quotaPercent
)

// Quota is the number of winners to draw, either absolute or as a share of
// the pool.
type Quota struct {
	kind    quotaKind
	fixed   int
	percent float64
}

// Fixed draws exactly n winners, capped at the pool size.
func Fixed(n int) Quota {
	return Quota{kind: quotaFixed, fixed: n}
}

// Percent draws floor(N*p) winners for a pool of N, with p in [0,1].
func Percent(p float64) Quota {
	return Quota{kind: quotaPercent, percent: p}
}

// Resolve returns the number of winners for a pool of n tickets, always in [0, n].
func (q Quota) Resolve(n int) int {
	if n <= 0 {
		return 0
	}
	var k int
	switch q.kind {
	case quotaPercent:
		if math.IsNaN(q.percent) || q.percent <= 0 {
			return 0
		}
		f := math.Floor(float64(n) * q.percent)
		if f >= float64(n) {
			return n
		}
		k = int(f)
	default:
		k = q.fixed
	}
	return min(max(k, 0), n)
}

func (q Quota) String() string {
	if q.kind == quotaPercent {
		return fmt.Sprintf("percent(%g)", q.percent)
	}
	return fmt.Sprintf("fixed(%d)", q.fixed)
}

// Result is the outcome of one draw. Seed is the hex ChaCha8 seed used, empty
// when the engine was built with an explicit source.
type Result struct {
	Winners []model.Winner
	Seed    string
}

// Tickets returns the winning ticket numbers in position order.
func (r Result) Tickets() []string {
	out := make([]string, len(r.Winners))
	for i, w := range r.Winners {
		out[i] = w.TicketNumber
	}
	return out
}

// Engine draws winners. Engines from New and Replay are safe for concurrent use.
type Engine struct {
	seed *[32]byte

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an engine that seeds a fresh ChaCha8 generator from crypto/rand
// for every draw.
func New() *Engine {
	return &Engine{}
}

// Replay returns an engine that reproduces the draw made with seedHex.
func Replay(seedHex string) (*Engine, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("seed must be 32 bytes, got %d", len(raw))
	}
	var seed [32]byte
	copy(seed[:], raw)
	return &Engine{seed: &seed}, nil
}

// NewWithSource returns an engine drawing from src across draws.
func NewWithSource(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

// Draw shuffles the de-duplicated pool uniformly and returns the first
// q.Resolve(N) tickets with positions 1..K. An empty pool or a non-positive
// quota yields an empty result.
func (e *Engine) Draw(pool []string, q Quota) Result {
	tickets := dedupe(pool)
	k := q.Resolve(len(tickets))
	if k == 0 {
		return Result{Winners: []model.Winner{}}
	}

	if e.rng != nil {
		e.mu.Lock()
		shuffle(e.rng, tickets)
		e.mu.Unlock()
		return Result{Winners: winners(tickets[:k])}
	}

	var seed [32]byte
	if e.seed != nil {
		seed = *e.seed
	} else {
		_, _ = cryptorand.Read(seed[:])
	}
	shuffle(rand.New(rand.NewChaCha8(seed)), tickets)
	return Result{
		Winners: winners(tickets[:k]),
		Seed:    hex.EncodeToString(seed[:]),
	}
}

func shuffle(r *rand.Rand, tickets []string) {
	r.Shuffle(len(tickets), func(i, j int) {
		tickets[i], tickets[j] = tickets[j], tickets[i]
	})
}

func winners(tickets []string) []model.Winner {
	out := make([]model.Winner, len(tickets))
	for i, t := range tickets {
		out[i] = model.Winner{TicketNumber: t, WinnerPosition: i + 1}
	}
	return out
}

// dedupe copies pool keeping the first occurrence of each ticket.
func dedupe(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, t := range pool {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
