package model

import (
	"github.com/pkg/errors"
)

// ErrBadPartition is the cause of every observation grouping error.
var ErrBadPartition = errors.New("Observation groups do not partition the raw observations")

// Groups maps each mesh location to the ordered raw observation indices
// measured there. It is built once and never changes; a location may have no
// observations at all.
type Groups struct {
	members [][]int
	rawLen  int
}

// NewGroups validates that index partitions the raw observations 0..rawLen-1
// (every raw index in exactly one group) and returns the mapping. The input is
// copied.
func NewGroups(index [][]int, rawLen int) (*Groups, error) {
	if len(index) < 1 {
		return nil, errors.Wrap(ErrBadPartition, "At least one location is required")
	}
	if rawLen < 0 {
		return nil, errors.Wrapf(ErrBadPartition, "Invalid raw observation count %d", rawLen)
	}

	owner := make([]int, rawLen)
	for i := range owner {
		owner[i] = -1
	}

	g := &Groups{
		members: make([][]int, len(index)),
		rawLen:  rawLen,
	}

	for loc, idx := range index {
		g.members[loc] = make([]int, len(idx))
		for k, r := range idx {
			if r < 0 || r >= rawLen {
				return nil, errors.Wrapf(ErrBadPartition, "Location %d has raw index %d outside [0,%d)", loc, r, rawLen)
			}
			if owner[r] >= 0 {
				return nil, errors.Wrapf(ErrBadPartition, "Raw index %d is in groups %d and %d", r, owner[r], loc)
			}
			owner[r] = loc
			g.members[loc][k] = r
		}
	}

	for r, loc := range owner {
		if loc < 0 {
			return nil, errors.Wrapf(ErrBadPartition, "Raw index %d belongs to no group", r)
		}
	}

	return g, nil
}

// GroupsFromLabels builds Groups from the location label of each raw
// observation. Labels must be in [0, n).
func GroupsFromLabels(labels []int, n int) (*Groups, error) {
	if n < 1 {
		return nil, errors.Wrapf(ErrBadPartition, "Invalid location count %d", n)
	}

	index := make([][]int, n)
	for r, loc := range labels {
		if loc < 0 || loc >= n {
			return nil, errors.Wrapf(ErrBadPartition, "Raw observation %d has location %d outside [0,%d)", r, loc, n)
		}
		index[loc] = append(index[loc], r)
	}

	return NewGroups(index, len(labels))
}

// Len is the number of locations.
func (g *Groups) Len() int {
	return len(g.members)
}

// RawLen is the number of raw observations.
func (g *Groups) RawLen() int {
	return g.rawLen
}

// Size is the number of raw observations at location i.
func (g *Groups) Size(i int) int {
	return len(g.members[i])
}

// Members returns the raw indices of location i. The slice must not be
// modified.
func (g *Groups) Members(i int) []int {
	return g.members[i]
}

// Observed returns the locations with at least one observation, in order.
func (g *Groups) Observed() []int {
	obs := make([]int, 0, len(g.members))
	for i, m := range g.members {
		if len(m) > 0 {
			obs = append(obs, i)
		}
	}
	return obs
}
