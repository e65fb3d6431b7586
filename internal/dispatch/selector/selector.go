// Package selector chooses which execution node receives the next job.
package selector

import (
	"sync/atomic"

	appErr "judgehub/pkg/errors"
)

// Node is an execution node endpoint, identified by its base URL.
type Node struct {
	URL string
}

// RoundRobin cycles through a fixed node list in configuration order.
// The cursor is advanced atomically so concurrent workers keep the
// exact round-robin guarantee instead of racing on a shared index.
type RoundRobin struct {
	nodes  []Node
	cursor atomic.Uint64
}

// NewRoundRobin creates a selector over the configured node URLs.
func NewRoundRobin(urls []string) (*RoundRobin, error) {
	if len(urls) == 0 {
		return nil, appErr.New(appErr.NoNodesConfigured)
	}
	nodes := make([]Node, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			return nil, appErr.ValidationError("node_url", "required")
		}
		nodes = append(nodes, Node{URL: u})
	}
	return &RoundRobin{nodes: nodes}, nil
}

// Next returns the node at the cursor and advances it, wrapping to zero.
func (r *RoundRobin) Next() Node {
	idx := r.cursor.Add(1) - 1
	return r.nodes[idx%uint64(len(r.nodes))]
}

// Len returns the number of configured nodes.
func (r *RoundRobin) Len() int {
	return len(r.nodes)
}
