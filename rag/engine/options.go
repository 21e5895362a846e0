package engine

import (
	"math"

	"github.com/mudler/hybridrecall/rag/types"
)

const (
	DefaultLimit             = 10
	DefaultOverrequestFactor = 10
	DefaultVectorPriority    = 1
	DefaultTextPriority      = 1
)

// Options tunes a single hybrid search.
type Options struct {
	// Limit is the maximum number of results returned, and the size of each source list.
	Limit int
	// OverrequestFactor widens the vector candidate pool to Limit*OverrequestFactor.
	OverrequestFactor float64
	// VectorPriority and TextPriority shift the ranks of their source before scoring.
	// 0 gives the top hit a score of 1; larger values dampen the source.
	VectorPriority float64
	TextPriority   float64
}

// DefaultOptions returns the options used when the caller does not set any.
func DefaultOptions() Options {
	return Options{
		Limit:             DefaultLimit,
		OverrequestFactor: DefaultOverrequestFactor,
		VectorPriority:    DefaultVectorPriority,
		TextPriority:      DefaultTextPriority,
	}
}

// Validate reports the first invalid parameter as a *types.ConfigurationError.
func (o Options) Validate() error {
	switch {
	case o.Limit <= 0:
		return &types.ConfigurationError{Field: "limit", Reason: "must be greater than 0"}
	case !(o.OverrequestFactor > 0) || math.IsInf(o.OverrequestFactor, 0):
		return &types.ConfigurationError{Field: "overrequest factor", Reason: "must be a positive number"}
	case !(o.VectorPriority >= 0) || math.IsInf(o.VectorPriority, 0):
		return &types.ConfigurationError{Field: "vector priority", Reason: "must not be negative"}
	case !(o.TextPriority >= 0) || math.IsInf(o.TextPriority, 0):
		return &types.ConfigurationError{Field: "text priority", Reason: "must not be negative"}
	}
	return nil
}

// NumCandidates is the size of the vector candidate pool, never smaller than Limit.
func (o Options) NumCandidates() int {
	n := math.Ceil(float64(o.Limit) * o.OverrequestFactor)
	if n >= float64(math.MaxInt) {
		return math.MaxInt
	}
	if int(n) < o.Limit {
		return o.Limit
	}
	return int(n)
}
