package reconcile

import (
	"sort"

	"PodAtlas/internal/gossip"
	"PodAtlas/internal/logger"
)

// Record is one reconciled pod: a single seed's draft chosen as
// canonical, annotated with every seed that reported the pubkey.
type Record struct {
	Pubkey           string   // Pubkey is the pod's identity, the merge key
	Address          string   // Address is the canonical draft's network address
	Version          string   // Version is the canonical draft's software version
	UptimeSeconds    float64  // UptimeSeconds from the canonical draft
	StorageCommitted uint64   // StorageCommitted bytes from the canonical draft
	StorageUsed      uint64   // StorageUsed bytes from the canonical draft
	PagingHitRate    float64  // PagingHitRate from the canonical draft
	SourceSeeds      []string // SourceSeeds are all seeds that reported this pubkey, sorted
	WinningSeed      string   // WinningSeed is the seed whose draft won the merge
	LatencyMs        float64  // LatencyMs is the winning seed's round-trip time
}

// Seen returns the pod's visibility: how many seeds reported it.
func (r *Record) Seen() int {
	return len(r.SourceSeeds)
}

// Merge folds per-seed pod lists into one canonical set keyed by pubkey.
// Drafts with no pubkey or an empty address are dropped as malformed.
// The fold is deterministic, commutative and associative: the same
// multiset of drafts yields the same records regardless of seed order.
// Records are returned sorted by pubkey.
func Merge(reports []gossip.SeedReport) []Record {
	byPubkey := make(map[string]Record)

	dropped := 0

	for _, report := range reports {
		for _, draft := range report.Pods {
			if draft.Pubkey == "" || draft.Address == "" {
				dropped++
				continue
			}

			next := fromDraft(draft, report.Seed, report.LatencyMs)

			if prev, ok := byPubkey[draft.Pubkey]; ok {
				next = merge(prev, next)
			}

			byPubkey[draft.Pubkey] = next
		}
	}

	if dropped > 0 {
		logger.Debug("dropped malformed pod drafts", "count", dropped)
	}

	records := make([]Record, 0, len(byPubkey))
	for _, r := range byPubkey {
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Pubkey < records[j].Pubkey
	})

	return records
}

// fromDraft lifts one seed's draft into a single-source record.
func fromDraft(d gossip.PodDraft, seed string, latencyMs float64) Record {
	return Record{
		Pubkey:           d.Pubkey,
		Address:          d.Address,
		Version:          d.Version,
		UptimeSeconds:    d.UptimeSeconds,
		StorageCommitted: d.StorageCommitted,
		StorageUsed:      d.StorageUsed,
		PagingHitRate:    d.PagingHitRate,
		SourceSeeds:      []string{seed},
		WinningSeed:      seed,
		LatencyMs:        latencyMs,
	}
}

// merge combines two records for the same pubkey. The winner keeps all
// scalar fields; source seeds are unioned. Scalars are never averaged:
// averaging would hide a stale seed's under-reporting behind a fresher
// seed's correct numbers.
func merge(a, b Record) Record {
	winner := a
	if wins(b, a) {
		winner = b
	}

	winner.SourceSeeds = unionSeeds(a.SourceSeeds, b.SourceSeeds)

	return winner
}

// wins reports whether a beats b as the canonical draft. The comparison
// is a total order so the fold is commutative: newer version, then
// higher committed storage, then lower source latency, then lower
// winning-seed identifier.
func wins(a, b Record) bool {
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		return c > 0
	}

	if a.StorageCommitted != b.StorageCommitted {
		return a.StorageCommitted > b.StorageCommitted
	}

	if a.LatencyMs != b.LatencyMs {
		return a.LatencyMs < b.LatencyMs
	}

	return a.WinningSeed < b.WinningSeed
}

// unionSeeds merges two sorted seed sets without duplicates.
func unionSeeds(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))

	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}
