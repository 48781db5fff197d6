package gossip

import "encoding/json"

// PodDraft is one seed's unreconciled view of a single pod.
// Fields mirror the wire shape of the get-pods-with-stats RPC.
type PodDraft struct {
	Pubkey           string  `json:"pubkey"`            // Pubkey is the pod's identity key
	Address          string  `json:"address"`           // Address is the pod's network address
	Version          string  `json:"version"`           // Version is the reported software version
	UptimeSeconds    float64 `json:"uptime"`            // UptimeSeconds is the reported uptime
	StorageCommitted uint64  `json:"storage_committed"` // StorageCommitted is committed bytes
	StorageUsed      uint64  `json:"storage_used"`      // StorageUsed is used bytes
	PagingHitRate    float64 `json:"paging_hit_rate"`   // PagingHitRate is the paging cache hit rate in [0,1]
}

// SeedReport is the outcome of one successful seed call.
type SeedReport struct {
	Seed      string     // Seed is the seed address that produced this report
	Pods      []PodDraft // Pods is the seed's raw pod list
	LatencyMs float64    // LatencyMs is the round-trip time of the call
}

// rpcRequest is the JSON-RPC envelope sent to a seed.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int    `json:"id"`
}

// rpcResponse is the JSON-RPC envelope returned by a seed.
// Older seeds return the pod list directly under result, newer
// ones wrap it in an object; both shapes are accepted.
type rpcResponse struct {
	Result rpcResult `json:"result"`
}

type rpcResult struct {
	Pods []PodDraft
}

// UnmarshalJSON accepts both {"pods":[...]} and a bare [...] result.
func (r *rpcResult) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &r.Pods)
	}

	var wrapped struct {
		Pods []PodDraft `json:"pods"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}

	r.Pods = wrapped.Pods

	return nil
}
