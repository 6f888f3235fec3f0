package tracing

import "time"

// Timeline returns the chain's spans with total duration and critical path.
// Running spans are listed but contribute nothing to either figure.
func (l *Logger) Timeline(corr string) Timeline {
	l.mu.Lock()
	spans := l.spansLocked(corr)
	l.mu.Unlock()

	path := criticalPath(spans)

	return Timeline{
		CorrelationID:   corr,
		Spans:           spans,
		TotalDurationMs: totalDuration(spans).Milliseconds(),
		CriticalPath:    path,
		CriticalPathMs:  pathDuration(path).Milliseconds(),
	}
}

// totalDuration is the latest end minus the earliest start among ended spans.
func totalDuration(spans []Span) time.Duration {
	var (
		minStart time.Time
		maxEnd   time.Time
		found    bool
	)

	for _, s := range spans {
		if !s.Ended() {
			continue
		}

		if !found || s.StartTime.Before(minStart) {
			minStart = s.StartTime
		}
		if !found || s.EndTime.After(maxEnd) {
			maxEnd = *s.EndTime
		}

		found = true
	}

	if !found {
		return 0
	}

	return maxEnd.Sub(minStart)
}

// longerPath reports whether chain p beats o: more spans first, then the
// earlier start.
func longerPath(p, o []Span) bool {
	if len(p) != len(o) {
		return len(p) > len(o)
	}
	if len(p) == 0 {
		return false
	}
	return p[0].StartTime.Before(o[0].StartTime)
}

// criticalPath finds the longest root-to-leaf chain of spans linked by
// parent/child relationships. spans must be sorted by start time.
func criticalPath(spans []Span) []Span {
	if len(spans) == 0 {
		return []Span{}
	}

	known := make(map[string]bool, len(spans))
	for _, s := range spans {
		known[s.SpanID] = true
	}

	children := map[string][]Span{}
	var roots []Span

	for _, s := range spans {
		if s.ParentSpanID == "" || !known[s.ParentSpanID] {
			roots = append(roots, s)
			continue
		}
		children[s.ParentSpanID] = append(children[s.ParentSpanID], s)
	}

	var walk func(s Span, seen map[string]bool) []Span
	walk = func(s Span, seen map[string]bool) []Span {
		if seen[s.SpanID] {
			return nil
		}
		seen[s.SpanID] = true
		defer delete(seen, s.SpanID)

		var best []Span
		for _, c := range children[s.SpanID] {
			if p := walk(c, seen); longerPath(p, best) {
				best = p
			}
		}

		return append([]Span{s}, best...)
	}

	var best []Span
	for _, r := range roots {
		if p := walk(r, map[string]bool{}); longerPath(p, best) {
			best = p
		}
	}

	return best
}

// pathDuration is the wall time of a chain: the latest end among its ended
// spans minus the start of its first span. Nested spans overlap their
// callers, so durations are not summed.
func pathDuration(path []Span) time.Duration {
	if len(path) == 0 {
		return 0
	}

	var (
		maxEnd time.Time
		found  bool
	)

	for _, s := range path {
		if s.Ended() && (!found || s.EndTime.After(maxEnd)) {
			maxEnd = *s.EndTime
			found = true
		}
	}

	if !found {
		return 0
	}

	return maxEnd.Sub(path[0].StartTime)
}
