package pkgrepo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
)

const (
	// DefaultWorkers bounds how many repository listings run in parallel.
	DefaultWorkers = 4
	// DefaultSourceTimeout caps each individual repository listing.
	DefaultSourceTimeout = 30 * time.Second
)

// Options configures an index run.
type Options struct {
	Workers       int                  // parallel source listings (default 4)
	SourceTimeout time.Duration        // per-source listing timeout (default 30s)
	Logger        func(string, ...any) // warning callback (optional)
}

// withDefaults returns a copy of Options with zero values replaced.
func (o Options) withDefaults() Options {
	opts := o
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Result is the outcome of an index run: a fresh graph snapshot plus the
// names of repositories that timed out or failed and are therefore missing
// from the snapshot.
type Result struct {
	Graph    *graph.Graph
	Degraded []string
}

// listing pairs a source with what it returned.
type listing struct {
	source  Source
	records []Record
}

// Index queries all sources and merges their package lists into one graph
// snapshot.
//
// Sources are independent and read-only, so listings run concurrently with
// bounded parallelism; a per-source timeout turns a slow repository into a
// degraded one (recorded and logged) rather than a failed index. The merge
// itself is single-threaded and deterministic.
//
// Two sources claiming the same (format, name, version) with differing
// dependency sets is ambiguous provenance: Index fails with an
// INDEX_CONFLICT error naming both entries rather than silently merging.
func Index(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	listings := make([]listing, len(sources))
	degraded := make([]bool, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, src := range sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, opts.SourceTimeout)
			defer cancel()

			records, err := src.ListPackages(sctx)
			if err != nil {
				// The index keeps going without this source; the
				// resolver reports it if a request needed it.
				opts.Logger("repository %s degraded: %v", src.Name(), err)
				degraded[i] = true
				return nil
			}
			listings[i] = listing{source: src, records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return merge(sources, listings, degraded)
}

// merge builds the graph from the collected listings. It is deliberately
// sequential: node dedup and provenance checks assume single-threaded
// construction.
func merge(sources []Source, listings []listing, degraded []bool) (*Result, error) {
	result := &Result{Graph: graph.New()}
	for i, src := range sources {
		if degraded[i] {
			result.Degraded = append(result.Degraded, src.Name())
		}
	}
	slices.Sort(result.Degraded)

	// Deterministic merge order regardless of listing completion order.
	order := make([]int, 0, len(listings))
	for i := range listings {
		if listings[i].source != nil {
			order = append(order, i)
		}
	}
	slices.SortFunc(order, func(a, b int) int {
		return strings.Compare(listings[a].source.Name(), listings[b].source.Name())
	})

	// provenance tracks who claimed each (format, name, version) and with
	// which dependency fingerprint.
	type claim struct {
		id          string
		fingerprint string
	}
	provenance := make(map[string]claim)

	for _, i := range order {
		src := listings[i].source
		records := slices.Clone(listings[i].records)
		slices.SortFunc(records, func(a, b Record) int {
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return strings.Compare(a.Version, b.Version)
		})

		for _, r := range records {
			p, err := r.ToPackage(src.Format(), src.Name())
			if err != nil {
				return nil, err
			}

			key := fmt.Sprintf("%s/%s/%s", src.Format(), r.Name, r.Version)
			fp := r.depFingerprint()
			if prev, ok := provenance[key]; ok && prev.fingerprint != fp {
				return nil, errors.New(errors.ErrCodeIndexConflict,
					"ambiguous provenance for %s %s (%s): sources disagree on its dependency set",
					r.Name, r.Version, src.Format()).
					WithPackages(prev.id, p.ID.String())
			}
			provenance[key] = claim{id: p.ID.String(), fingerprint: fp}

			if err := result.Graph.Add(p); err != nil {
				return nil, errors.Wrap(errors.ErrCodeIndexConflict, err,
					"repository %q", src.Name()).WithPackages(p.ID.String())
			}
		}
	}
	return result, nil
}
