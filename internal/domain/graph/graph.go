// Package graph internal/domain/graph/graph.go
package graph

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// edge is one directed conversion step. Stored edges come straight from a
// cached pair; synthesized edges are the 1/rate inverse of one.
type edge struct {
	rate   decimal.Decimal
	stored bool
}

// Graph resolves a rate between any two currencies reachable through a
// chain of cached pairs. A graph instance is derived from exactly one
// snapshot version and is immutable once built.
type Graph struct {
	version uint64
	adj     map[entity.CurrencyCode]map[entity.CurrencyCode]edge
}

// Build constructs the adjacency for a snapshot: every pair contributes
// its direct edge, and the opposite direction is synthesized as 1/rate
// unless a stored pair already owns it.
func Build(snap *entity.Snapshot) *Graph {
	g := &Graph{
		version: snap.Version,
		adj:     make(map[entity.CurrencyCode]map[entity.CurrencyCode]edge, len(snap.Pairs)),
	}
	for _, p := range snap.Pairs {
		g.setEdge(p.Base, p.Quote, edge{rate: p.Rate, stored: true})
	}
	for _, p := range snap.Pairs {
		if _, ok := g.adj[p.Quote][p.Base]; ok {
			continue
		}
		inv := p.Inverse()
		g.setEdge(inv.Base, inv.Quote, edge{rate: inv.Rate})
	}
	return g
}

func (g *Graph) setEdge(from, to entity.CurrencyCode, e edge) {
	if g.adj[from] == nil {
		g.adj[from] = map[entity.CurrencyCode]edge{}
	}
	g.adj[from][to] = e
}

// Version returns the snapshot version this graph was built from.
func (g *Graph) Version() uint64 { return g.version }

// Resolution is the result of resolving a rate through the graph.
type Resolution struct {
	Rate decimal.Decimal
	// Path is the node sequence the rate was composed along, including
	// both endpoints. A direct edge has a two-node path.
	Path []entity.CurrencyCode
	// Stored is true when the rate came unmodified from a cached pair.
	Stored bool
}

// Hops returns the number of edges the resolution crossed.
func (r Resolution) Hops() int {
	if len(r.Path) < 2 {
		return 0
	}
	return len(r.Path) - 1
}

// Resolve returns the rate from one currency to another. Identity resolves
// to 1. A single edge is returned as-is, with no path search, so direct
// quotes carry no composition drift. Anything further away is resolved
// over the fewest-hop path, multiplying edge rates; among equal-length
// paths the lexicographically smallest node sequence wins so the result is
// deterministic.
func (g *Graph) Resolve(from, to entity.CurrencyCode) (Resolution, error) {
	if from == to {
		return Resolution{Rate: decimal.NewFromInt(1), Path: []entity.CurrencyCode{from}}, nil
	}
	if e, ok := g.adj[from][to]; ok {
		return Resolution{Rate: e.rate, Path: []entity.CurrencyCode{from, to}, Stored: e.stored}, nil
	}

	distFrom := g.distances(from)
	if _, ok := distFrom[to]; !ok {
		return Resolution{}, &entity.RateNotFoundError{Base: from, Quote: to}
	}
	// Every edge has a counterpart in the opposite direction, so distances
	// measured from the target over the same adjacency are valid
	// remaining-hop counts.
	distTo := g.distances(to)

	path := []entity.CurrencyCode{from}
	rate := decimal.NewFromInt(1)
	cur := from
	for cur != to {
		next := g.nextOnShortestPath(cur, distFrom, distTo)
		rate = rate.Mul(g.adj[cur][next].rate)
		path = append(path, next)
		cur = next
	}
	return Resolution{Rate: rate, Path: path}, nil
}

// distances runs a breadth-first search and returns hop counts from start
// to every reachable node.
func (g *Graph) distances(start entity.CurrencyCode) map[entity.CurrencyCode]int {
	dist := map[entity.CurrencyCode]int{start: 0}
	queue := []entity.CurrencyCode{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.adj[cur] {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

// nextOnShortestPath picks the lexicographically smallest neighbor that
// stays on a fewest-hop path: one step further from the origin and one
// step closer to the target.
func (g *Graph) nextOnShortestPath(cur entity.CurrencyCode, distFrom, distTo map[entity.CurrencyCode]int) entity.CurrencyCode {
	candidates := make([]entity.CurrencyCode, 0, len(g.adj[cur]))
	for next := range g.adj[cur] {
		df, okF := distFrom[next]
		dt, okT := distTo[next]
		if okF && okT && df == distFrom[cur]+1 && dt == distTo[cur]-1 {
			candidates = append(candidates, next)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates[0]
}
