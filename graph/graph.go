// Package graph keeps a bounded history of agent handoffs and renders it as
// Mermaid flow and sequence diagrams.
package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
)

// ExternalCaller names the source of handoffs without a source agent.
const ExternalCaller = "user"

// Handoff describes one transfer of control to an agent.
type Handoff struct {
	// SourceAgent is empty for calls from outside the mesh.
	SourceAgent   string        `json:"source_agent,omitempty"`
	TargetAgent   string        `json:"target_agent"`
	ExecutionTime time.Duration `json:"execution_time"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

// Source returns the source agent or ExternalCaller.
func (h Handoff) Source() string {
	if h.SourceAgent == "" {
		return ExternalCaller
	}
	return h.SourceAgent
}

// Record is a stored handoff.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Handoff
}

// Options configures a Graph.
type Options struct {
	Logger logging.Logger
	// MaxRecords bounds the history; the oldest records are dropped first.
	MaxRecords int
}

// Graph is a ring buffer of handoff records. It is safe for concurrent use.
type Graph struct {
	mu      sync.RWMutex
	records *util.Ring[Record]
	opts    Options
}

// New creates an empty graph.
func New(optFns ...func(o *Options)) *Graph {
	opts := Options{
		Logger:     logging.NoOpLogger{},
		MaxRecords: 1000,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Graph{records: util.NewRing[Record](opts.MaxRecords), opts: opts}
}

// RecordHandoff stamps h with an id and timestamp and appends it.
func (g *Graph) RecordHandoff(h Handoff) Record {
	rec := Record{
		ID:        core.NewID(),
		Timestamp: time.Now(),
		Handoff:   h,
	}

	g.mu.Lock()
	g.records.Push(rec)
	g.mu.Unlock()

	g.opts.Logger.Debug("graph.handoff.recorded",
		"handoff.id", rec.ID,
		"handoff.source", h.Source(),
		"handoff.target", h.TargetAgent,
		"handoff.success", h.Success,
		"handoff.duration_ms", h.ExecutionTime.Milliseconds(),
	)

	return rec
}

// Records returns a copy of the history, oldest first.
func (g *Graph) Records() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.records.Slice()
}

// Len returns the number of stored records.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.records.Len()
}

// Agents lists every agent that appears in the history in first-seen order.
func (g *Graph) Agents() []string {
	return agents(g.Records())
}

// Clear drops all records.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.records.Reset()
}

func agents(records []Record) []string {
	seen := map[string]bool{}
	out := []string{}

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, r := range records {
		add(r.Source())
		add(r.TargetAgent)
	}

	return out
}

// nodeIDs assigns a unique Mermaid-safe identifier to every agent.
func nodeIDs(names []string) map[string]string {
	ids := make(map[string]string, len(names))
	used := map[string]bool{}

	for _, name := range names {
		id := sanitizeID(name)
		for base, n := id, 2; used[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}

		used[id] = true
		ids[name] = id
	}

	return ids
}

func sanitizeID(name string) string {
	var b strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	id := b.String()

	switch {
	case id == "":
		return "agent"
	case id == "end" || id[0] >= '0' && id[0] <= '9':
		return "a_" + id
	}

	return id
}

// label strips characters that terminate Mermaid labels and messages.
func label(s string) string {
	return strings.NewReplacer("|", "/", "\n", " ", "\r", " ", ";", ",", "\"", "'").Replace(s)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
