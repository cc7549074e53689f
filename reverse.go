package gns

import (
	"context"
	"errors"
)

// ErrNoReversePath is returned when no human-readable path to the target
// zone was found within the depth bound.
var ErrNoReversePath = errors.New("no reverse path found")

type reverseNode struct {
	name  string // accumulated path so far, leaf label first
	zone  ZoneKey
	depth int
}

// ReverseLookup attempts to discover a human-readable name for target
// relative to authority by breadth-first probing of REVERSE records under
// the apex of each candidate zone. The search is bounded by a fixed depth;
// there is no visited-set, so adversarial REVERSE graphs are only
// contained by the bound.
func (r *Resolver) ReverseLookup(ctx context.Context, target, authority ZoneKey) (name string, err error) {
	queue := []reverseNode{{zone: target}}
	for len(queue) > 0 {
		if err = ctx.Err(); err != nil {
			return "", err
		}
		node := queue[0]
		queue = queue[1:]

		recs, rerr := r.Resolve(ctx, node.zone, TypeREVERSE, "+", LookupDefault)
		if rerr != nil {
			// A zone without reverse records just ends this branch.
			continue
		}
		for _, rec := range recs {
			if rec.Type != TypeREVERSE {
				continue
			}
			parent, label, perr := parseReverse(rec.Data)
			if perr != nil {
				continue
			}
			if parent == authority {
				return joinReverse(node.name, label) + ".gnu", nil
			}
			if node.depth < reverseMaxDepth {
				queue = append(queue, reverseNode{
					name:  joinReverse(node.name, label),
					zone:  parent,
					depth: node.depth + 1,
				})
			}
		}
	}
	return "", ErrNoReversePath
}

func joinReverse(acc, label string) string {
	if acc == "" {
		return label
	}
	return acc + "." + label
}
