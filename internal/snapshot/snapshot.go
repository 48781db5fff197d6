// Package snapshot assembles scored pod records into one immutable,
// point-in-time view of the network.
package snapshot

import (
	"sort"
	"time"

	"PodAtlas/internal/reconcile"
	"PodAtlas/internal/score"
)

// Pod is one scored, reconciled pod as served to consumers.
type Pod struct {
	Pubkey           string          `json:"pubkey"`
	ShortID          string          `json:"short_id"`
	Address          string          `json:"address"`
	Version          string          `json:"version"`
	UptimeSeconds    float64         `json:"uptime_sec"`
	StorageCommitted uint64          `json:"storage_committed_bytes"`
	StorageUsed      uint64          `json:"storage_used_bytes"`
	PagingHitRate    float64         `json:"paging_hit_rate"`
	SourceSeeds      []string        `json:"source_seeds"`
	Seen             int             `json:"seen_by_seeds"`
	LatencyMs        float64         `json:"latency_ms"`
	Credits          int64           `json:"reputation_credits"`
	HealthScore      int             `json:"health_score"`
	Breakdown        score.Breakdown `json:"score_breakdown"`
	Country          string          `json:"country,omitempty"` // Country is filled by the geo collaborator, opaque here
}

// Stats are the network-wide aggregates of one snapshot.
type Stats struct {
	TotalPods           int            `json:"total_pods"`
	TotalCommittedBytes uint64         `json:"total_committed_bytes"`
	AvgHealth           float64        `json:"avg_health"`
	AvgPagingEfficiency float64        `json:"avg_paging_efficiency"`
	CompliantPods       int            `json:"compliant_pods"`
	Regions             map[string]int `json:"regions,omitempty"` // Regions is filled by the geo collaborator
}

// Snapshot is one complete observation of the network. It is created
// fresh each crawl cycle and never mutated after assembly.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Pods      []Pod     `json:"pods"`
	Stats     Stats     `json:"network"`
}

// Assemble scores every record and produces the snapshot: pods ordered
// by descending health score (ties broken by pubkey ascending), plus
// the network aggregates. Input records are not mutated.
func Assemble(now time.Time, records []reconcile.Record, credits map[string]int64, params score.Params) *Snapshot {
	maxUptime := maxUptimeSeconds(records)

	pods := make([]Pod, 0, len(records))

	var (
		healthSum float64
		pagingSum float64
		committed uint64
		compliant int
	)

	for _, rec := range records {
		total, breakdown := score.Score(score.Input{
			Version:          rec.Version,
			UptimeSeconds:    rec.UptimeSeconds,
			StorageCommitted: rec.StorageCommitted,
			PagingHitRate:    rec.PagingHitRate,
		}, maxUptime, params)

		pods = append(pods, Pod{
			Pubkey:           rec.Pubkey,
			ShortID:          shortID(rec.Pubkey),
			Address:          rec.Address,
			Version:          rec.Version,
			UptimeSeconds:    rec.UptimeSeconds,
			StorageCommitted: rec.StorageCommitted,
			StorageUsed:      rec.StorageUsed,
			PagingHitRate:    rec.PagingHitRate,
			SourceSeeds:      rec.SourceSeeds,
			Seen:             rec.Seen(),
			LatencyMs:        rec.LatencyMs,
			Credits:          credits[rec.Pubkey],
			HealthScore:      total,
			Breakdown:        breakdown,
		})

		healthSum += float64(total)
		pagingSum += rec.PagingHitRate
		committed += rec.StorageCommitted

		if breakdown.Version > 10 {
			compliant++
		}
	}

	sort.Slice(pods, func(i, j int) bool {
		if pods[i].HealthScore != pods[j].HealthScore {
			return pods[i].HealthScore > pods[j].HealthScore
		}
		return pods[i].Pubkey < pods[j].Pubkey
	})

	stats := Stats{
		TotalPods:           len(pods),
		TotalCommittedBytes: committed,
		CompliantPods:       compliant,
	}

	if len(pods) > 0 {
		stats.AvgHealth = healthSum / float64(len(pods))
		stats.AvgPagingEfficiency = pagingSum / float64(len(pods))
	}

	return &Snapshot{
		Timestamp: now,
		Pods:      pods,
		Stats:     stats,
	}
}

// maxUptimeSeconds returns the highest uptime across the cycle.
func maxUptimeSeconds(records []reconcile.Record) float64 {
	var max float64
	for _, r := range records {
		if r.UptimeSeconds > max {
			max = r.UptimeSeconds
		}
	}

	return max
}

// shortID abbreviates a pubkey for display.
func shortID(pubkey string) string {
	if len(pubkey) <= 8 {
		return pubkey
	}

	return pubkey[:8] + "..."
}
