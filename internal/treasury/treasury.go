// Package treasury holds the shared balance, its append-only ledger and the
// metrics derived from it.
package treasury

import (
	"sort"
	"time"

	"becoin/internal/domain"
)

const DefaultBurnWindow = 72 * time.Hour

type Metrics struct {
	BurnRate float64
	// RunwayHours is nil while nothing is burning.
	RunwayHours  *float64
	ProfitMargin float64
}

func (m Metrics) RunwayUnbounded() bool { return m.RunwayHours == nil }

func (m Metrics) clone() Metrics {
	if m.RunwayHours != nil {
		h := *m.RunwayHours
		m.RunwayHours = &h
	}
	return m
}

type outflow struct {
	at     time.Time
	amount float64
}

// Treasury is not safe for concurrent use; the engine serializes access.
type Treasury struct {
	startCapital float64
	balance      float64
	window       time.Duration
	entries      []domain.LedgerEntry

	// recent is a deque of outflows ordered by time, recent[head:] is live.
	recent    []outflow
	head      int
	recentSum float64

	totalRevenue float64
	totalCost    float64
	metrics      Metrics
}

// New returns a treasury holding startCapital. A non-positive window falls
// back to DefaultBurnWindow.
func New(startCapital float64, window time.Duration) *Treasury {
	if window <= 0 {
		window = DefaultBurnWindow
	}
	return &Treasury{
		startCapital: startCapital,
		balance:      startCapital,
		window:       window,
	}
}

func (t *Treasury) StartCapital() float64 { return t.startCapital }
func (t *Treasury) Balance() float64      { return t.balance }
func (t *Treasury) Window() time.Duration { return t.window }
func (t *Treasury) Len() int              { return len(t.entries) }
func (t *Treasury) TotalRevenue() float64 { return t.totalRevenue }
func (t *Treasury) TotalCost() float64    { return t.totalCost }
func (t *Treasury) Metrics() Metrics      { return t.metrics.clone() }

// Entries returns a copy of the ledger in insertion order.
func (t *Treasury) Entries() []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Clone()
	}
	return out
}

// ApplyEntry appends e, moves the balance by e.Amount and recomputes the
// metrics as of e.Timestamp. It is the only way to change the balance.
func (t *Treasury) ApplyEntry(e domain.LedgerEntry) {
	e = e.Clone()
	e.Timestamp = e.Timestamp.UTC()
	t.balance += e.Amount
	t.entries = append(t.entries, e)
	if e.Amount >= 0 {
		t.totalRevenue += e.Amount
	} else {
		t.totalCost += -e.Amount
		t.pushOutflow(outflow{at: e.Timestamp, amount: -e.Amount})
	}
	t.recompute(e.Timestamp)
}

func (t *Treasury) pushOutflow(o outflow) {
	n := len(t.recent)
	if n == t.head || !o.at.Before(t.recent[n-1].at) {
		t.recent = append(t.recent, o)
	} else {
		live := t.recent[t.head:]
		i := sort.Search(len(live), func(i int) bool { return live[i].at.After(o.at) })
		i += t.head
		t.recent = append(t.recent, outflow{})
		copy(t.recent[i+1:], t.recent[i:])
		t.recent[i] = o
	}
	t.recentSum += o.amount
}

func (t *Treasury) prune(cutoff time.Time) {
	for t.head < len(t.recent) && t.recent[t.head].at.Before(cutoff) {
		t.recentSum -= t.recent[t.head].amount
		t.head++
	}
	if t.head == len(t.recent) {
		t.recent = t.recent[:0]
		t.head = 0
		t.recentSum = 0
		return
	}
	if t.head > len(t.recent)/2 {
		t.recent = append(t.recent[:0], t.recent[t.head:]...)
		t.head = 0
	}
}

func (t *Treasury) windowSum(now time.Time) float64 {
	t.prune(now.Add(-t.window))
	sum := t.recentSum
	// Outflows stamped after now are outside [now-window, now].
	for i := len(t.recent) - 1; i >= t.head && t.recent[i].at.After(now); i-- {
		sum -= t.recent[i].amount
	}
	if sum < 0 {
		sum = 0
	}
	return sum
}

func (t *Treasury) recompute(now time.Time) {
	burn := t.windowSum(now) / t.window.Hours()
	m := Metrics{BurnRate: burn}
	if burn > 0 {
		runway := t.balance / burn
		m.RunwayHours = &runway
	}
	switch {
	case t.totalRevenue > 0:
		m.ProfitMargin = (t.totalRevenue - t.totalCost) / t.totalRevenue * 100
	case t.totalCost > 0:
		m.ProfitMargin = -100
	}
	t.metrics = m
}

// Clone returns an independent deep copy.
func (t *Treasury) Clone() *Treasury {
	c := *t
	c.entries = t.Entries()
	c.recent = append([]outflow(nil), t.recent...)
	c.metrics = t.metrics.clone()
	return &c
}
