// Package fusion reconstructs traffic quantities (speed, flow, density) on a
// location x time grid from sparse measurements of several data sources.
//
// Each measurement is weighted twice: once assuming information travels
// upstream with the congestion wave speed and once assuming it travels
// downstream with the free-flow wave speed. A smooth congestion indicator
// derived from local speed blends the two hypotheses, and sources are fused
// by their stated reliability and local data density.
//
// Two algorithms share the same semantics: Engine.FilterSI sums measurements
// directly for every output cell, Engine.FilterFastSI snaps measurements onto
// an equidistant output grid and replaces the sums by 2-D convolutions.
//
// An Engine serialises all data mutation and filtering with a single lock.
// Listeners receive progress events during a filter and may interrupt it; an
// interrupted filter returns a nil result and a nil error.
package fusion
