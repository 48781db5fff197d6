// Package score implements the Heidelberg health score: a deterministic
// weighted four-component formula over one reconciled pod record.
package score

import "strings"

// Component weights. The four components sum to at most 100.
const (
	versionWeight = 40
	versionFloor  = 10
	uptimeWeight  = 30
	storageWeight = 20
	pagingWeight  = 10
)

// DefaultTargetBytes is the storage commitment that earns full storage
// credit: 100 MiB.
const DefaultTargetBytes = 100 << 20

// DefaultMarkers are the two most recent minor release lines considered
// version-compliant.
var DefaultMarkers = []string{"0.8", "0.9"}

// Params configure the scorer.
type Params struct {
	Markers     []string // Markers are version substrings that meet the compliance bar
	TargetBytes uint64   // TargetBytes is the committed-storage target for full credit
}

// DefaultParams returns the default scoring parameters.
func DefaultParams() Params {
	return Params{Markers: DefaultMarkers, TargetBytes: DefaultTargetBytes}
}

// Breakdown is the per-component score, truncated to integers. The
// components always sum to Total (before the final [0,100] clamp), so
// displayed breakdowns are consistent with displayed totals.
type Breakdown struct {
	Version int `json:"version_compliance"`
	Uptime  int `json:"uptime_reliability"`
	Storage int `json:"storage_weight"`
	Paging  int `json:"paging_efficiency"`
}

// Input is the slice of a pod record the scorer reads. Pure data in,
// pure data out: the scorer never touches reconciliation or crawl state.
type Input struct {
	Version          string
	UptimeSeconds    float64
	StorageCommitted uint64
	PagingHitRate    float64
}

// Score computes the bounded health score for one pod. maxUptimeSeconds
// is the maximum uptime observed across the whole cycle; a denominator
// floor of 1 guards the empty or all-zero network.
//
// Each component is truncated to an integer before summing, and the
// total is the clamped sum. Truncate-then-sum keeps the breakdown and
// the total consistent at display granularity.
func Score(in Input, maxUptimeSeconds float64, p Params) (int, Breakdown) {
	b := Breakdown{
		Version: versionComponent(in.Version, p.Markers),
		Uptime:  uptimeComponent(in.UptimeSeconds, maxUptimeSeconds),
		Storage: storageComponent(in.StorageCommitted, p.TargetBytes),
		Paging:  pagingComponent(in.PagingHitRate),
	}

	total := b.Version + b.Uptime + b.Storage + b.Paging
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	return total, b
}

// versionComponent is binary: a pod either carries a compliant release
// marker and earns the full weight, or gets the fixed floor.
func versionComponent(version string, markers []string) int {
	for _, m := range markers {
		if m != "" && strings.Contains(version, m) {
			return versionWeight
		}
	}

	return versionFloor
}

// uptimeComponent scales uptime against the network maximum, clamped to
// the component weight.
func uptimeComponent(uptime, maxUptime float64) int {
	if maxUptime < 1 {
		maxUptime = 1
	}

	if uptime < 0 {
		uptime = 0
	}

	v := int((uptime / maxUptime) * uptimeWeight)
	if v > uptimeWeight {
		v = uptimeWeight
	}

	return v
}

// storageComponent saturates at the weight: committing more than the
// target earns no extra credit.
func storageComponent(committed, target uint64) int {
	if target == 0 {
		target = DefaultTargetBytes
	}

	v := int((float64(committed) / float64(target)) * storageWeight)
	if v > storageWeight {
		v = storageWeight
	}
	if v < 0 {
		v = 0
	}

	return v
}

// pagingComponent scales the hit rate linearly into the weight.
func pagingComponent(hitRate float64) int {
	if hitRate < 0 {
		hitRate = 0
	}
	if hitRate > 1 {
		hitRate = 1
	}

	return int(hitRate * pagingWeight)
}
