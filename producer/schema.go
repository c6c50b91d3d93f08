package producer

import (
	"sort"

	"github.com/waivern/orchestrator/types"
)

// Compatible reports whether output is among the accepted input
// combinations for a single-input edge, or participates in a multi-input
// (fan-in) combination. accepted is the processor's declared
// SupportedInputSchemas: a set of sets, each inner slice one acceptable
// combination of schema ids a fan-in processor agrees to receive
// together.
//
// Compatible checks membership only: it does not check that the rest of
// a combination is present. The unordered multiset match of spec §9 open
// question 4 ({A,B} and {B,A} are the same combination, and every schema
// in it must be present) is done by CombinationSatisfied.
func Compatible(output types.Schema, accepted [][]types.Schema) bool {
	for _, combo := range accepted {
		for _, s := range combo {
			if s == output {
				return true
			}
		}
	}
	return false
}

// CombinationSatisfied reports whether the full set of incoming schemas
// for a fan-in node matches one of the processor's accepted
// combinations, as an unordered multiset.
func CombinationSatisfied(incoming []types.Schema, accepted [][]types.Schema) bool {
	sortedIncoming := sortedCopy(incoming)
	for _, combo := range accepted {
		if equalMultiset(sortedIncoming, sortedCopy(combo)) {
			return true
		}
	}
	return false
}

func sortedCopy(s []types.Schema) []types.Schema {
	out := make([]types.Schema, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalMultiset(a, b []types.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
