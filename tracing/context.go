package tracing

import (
	"sort"
	"strconv"
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// FromContext derives spans from a chain's execution log without touching any
// Logger. Entries are appended when a call finishes, so a nested call always
// precedes its caller: the parent of an entry is the next entry one level up.
// Start times are reconstructed as timestamp minus duration and widened so a
// parent never starts after its children.
func FromContext(ic *core.InvocationContext) []Span {
	if ic == nil {
		return []Span{}
	}

	entries := ic.ExecutionLog()

	spans := make([]Span, len(entries))
	for i, e := range entries {
		end := e.Timestamp

		status := StatusSuccess
		if e.Status == core.StatusError {
			status = StatusError
		}

		spans[i] = Span{
			SpanID:        ic.CorrelationID + ":" + strconv.Itoa(i),
			CorrelationID: ic.CorrelationID,
			ToolName:      e.ToolName,
			StartTime:     end.Add(-time.Duration(e.DurationMs) * time.Millisecond),
			EndTime:       &end,
			Status:        status,
			InputHash:     e.InputHash,
			OutputSummary: e.OutputSummary,
			Error:         e.Error,
			Depth:         e.Depth,
		}
	}

	for i := range spans {
		p := callerIndex(spans, i)
		if p < 0 {
			continue
		}

		spans[i].ParentSpanID = spans[p].SpanID
		if spans[i].StartTime.Before(spans[p].StartTime) {
			spans[p].StartTime = spans[i].StartTime
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].StartTime.Equal(spans[j].StartTime) {
			return spans[i].Depth < spans[j].Depth
		}
		return spans[i].StartTime.Before(spans[j].StartTime)
	})

	return spans
}

// callerIndex returns the index of the entry that made call i, or -1.
func callerIndex(spans []Span, i int) int {
	d := spans[i].Depth
	if d == 0 {
		return -1
	}

	for k := i + 1; k < len(spans); k++ {
		switch {
		case spans[k].Depth == d-1:
			return k
		case spans[k].Depth < d-1:
			return -1
		}
	}

	return -1
}
