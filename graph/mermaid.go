package graph

import (
	"fmt"
	"strings"
)

const (
	emptyFlow     = "graph LR\n    empty[\"No handoffs recorded\"]"
	emptySequence = "sequenceDiagram\n    Note over user: No handoffs recorded"

	errorClassDef = "classDef error fill:#fdecea,stroke:#d93025,color:#d93025"
)

// ToMermaid renders the history as a left-to-right flow graph. Every handoff
// becomes one edge labeled with its duration; failed handoffs use a dotted
// edge into a node tagged with the error class.
func (g *Graph) ToMermaid() string {
	records := g.Records()
	if len(records) == 0 {
		return emptyFlow
	}

	names := agents(records)
	ids := nodeIDs(names)

	var b strings.Builder

	b.WriteString("graph LR")

	for _, name := range names {
		fmt.Fprintf(&b, "\n    %s[\"%s\"]", ids[name], label(name))
	}

	failed := false

	for _, r := range records {
		from, to := ids[r.Source()], ids[r.TargetAgent]

		if r.Success {
			fmt.Fprintf(&b, "\n    %s -->|%s| %s", from, formatDuration(r.ExecutionTime), to)
			continue
		}

		failed = true
		fmt.Fprintf(&b, "\n    %s -.->|%s failed| %s:::error", from, formatDuration(r.ExecutionTime), to)
	}

	if failed {
		b.WriteString("\n    " + errorClassDef)
	}

	return b.String()
}

// ToSequenceDiagram renders the history as a Mermaid sequence diagram with
// one participant per agent and one message per handoff. Failed handoffs use
// the cross arrow.
func (g *Graph) ToSequenceDiagram() string {
	records := g.Records()
	if len(records) == 0 {
		return emptySequence
	}

	names := agents(records)
	ids := nodeIDs(names)

	var b strings.Builder

	b.WriteString("sequenceDiagram")

	for _, name := range names {
		if ids[name] == name {
			fmt.Fprintf(&b, "\n    participant %s", name)
		} else {
			fmt.Fprintf(&b, "\n    participant %s as %s", ids[name], label(name))
		}
	}

	for _, r := range records {
		from, to := ids[r.Source()], ids[r.TargetAgent]

		if r.Success {
			fmt.Fprintf(&b, "\n    %s->>%s: handoff (%s)", from, to, formatDuration(r.ExecutionTime))
			continue
		}

		msg := "failed (" + formatDuration(r.ExecutionTime) + ")"
		if r.Error != "" {
			msg += ": " + label(r.Error)
		}

		fmt.Fprintf(&b, "\n    %s--x%s: %s", from, to, msg)
	}

	return b.String()
}
