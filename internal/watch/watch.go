// Package watch raises alerts for a configured watchlist of pods. It
// observes each published snapshot, diagnoses the watched pods and
// notifies a sink with rate-limited alerts and one-shot recovery
// notices.
package watch

import (
	"fmt"
	"sync"
	"time"

	"PodAtlas/internal/logger"
	"PodAtlas/internal/snapshot"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning   Severity = "WARNING"
	SeverityCritical  Severity = "CRITICAL"
	SeverityOffline   Severity = "OFFLINE"
	SeverityRecovered Severity = "RECOVERED"
)

// Issue tags group related diagnoses so cooldowns and recoveries are
// tracked per problem, not per message.
const (
	IssueOffline = "OFFLINE"
	IssueVersion = "VERSION"
	IssueUptime  = "UPTIME"
	IssueStorage = "STORAGE"
	IssuePaging  = "PAGING"
)

// Diagnosis thresholds.
const (
	criticalUptime   = 30 * time.Minute // below this the pod is restart-looping
	warningUptime    = 24 * time.Hour
	criticalStorage  = 50 << 20 // essentially no commitment
	warningStorage   = 100 << 20
	warningPagingMin = 0.85

	// offlineStrikes is how many consecutive missed cycles confirm an
	// outage before the first offline alert.
	offlineStrikes = 2
)

// Alert is one notification about a watched pod.
type Alert struct {
	Pubkey    string    `json:"pubkey"`
	Issue     string    `json:"issue"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Score     int       `json:"health_score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers alerts. Delivery failures must not block the
// observing cycle.
type Notifier interface {
	Notify(alert Alert)
}

// Options tune the engine.
type Options struct {
	OfflineInterval  time.Duration // OfflineInterval between repeated offline alerts; 0 means 10 minutes
	CriticalInterval time.Duration // CriticalInterval between repeated critical alerts; 0 means 1 hour
	WarningInterval  time.Duration // WarningInterval between repeated warnings; 0 means 6 hours
	MinNetworkPods   int           // MinNetworkPods skips cycles with suspiciously few pods

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine diagnoses watched pods on every snapshot.
type Engine struct {
	watchlist map[string]struct{}
	notifier  Notifier
	opts      Options

	mu        sync.Mutex
	strikes   map[string]int       // strikes counts consecutive missed cycles per pod
	lastAlert map[string]time.Time // lastAlert is keyed by pubkey+"|"+issue
}

// NewEngine creates an alert engine over the given watchlist.
func NewEngine(watchlist []string, notifier Notifier, opts Options) *Engine {
	if opts.OfflineInterval <= 0 {
		opts.OfflineInterval = 10 * time.Minute
	}
	if opts.CriticalInterval <= 0 {
		opts.CriticalInterval = time.Hour
	}
	if opts.WarningInterval <= 0 {
		opts.WarningInterval = 6 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	set := make(map[string]struct{}, len(watchlist))
	for _, pubkey := range watchlist {
		set[pubkey] = struct{}{}
	}

	return &Engine{
		watchlist: set,
		notifier:  notifier,
		opts:      opts,
		strikes:   make(map[string]int),
		lastAlert: make(map[string]time.Time),
	}
}

// Observe diagnoses every watched pod against the snapshot. Called by
// the crawler after each successful cycle.
func (e *Engine) Observe(snap *snapshot.Snapshot) {
	if len(e.watchlist) == 0 {
		return
	}

	// A near-empty snapshot usually means a crawl anomaly, not a mass
	// outage; alerting on it would spam every watcher.
	if len(snap.Pods) < e.opts.MinNetworkPods {
		logger.Warn("skipping alert cycle, suspiciously few pods", "pods", len(snap.Pods))
		return
	}

	byPubkey := make(map[string]snapshot.Pod, len(snap.Pods))
	for _, p := range snap.Pods {
		byPubkey[p.Pubkey] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for pubkey := range e.watchlist {
		pod, ok := byPubkey[pubkey]
		if !ok {
			e.handleOffline(pubkey)
			continue
		}

		e.handleOnline(pubkey, pod)
	}
}

// handleOffline counts a missed cycle and alerts once the outage is
// confirmed by consecutive strikes. Callers hold mu.
func (e *Engine) handleOffline(pubkey string) {
	e.strikes[pubkey]++

	if e.strikes[pubkey] < offlineStrikes {
		logger.Debug("watched pod missed one cycle", "pod", pubkey, "strikes", e.strikes[pubkey])
		return
	}

	e.raise(Alert{
		Pubkey:   pubkey,
		Issue:    IssueOffline,
		Severity: SeverityOffline,
		Message:  "pod unreachable for consecutive crawl cycles",
	}, e.opts.OfflineInterval)
}

// handleOnline resets strikes, emits recoveries for cleared issues and
// alerts on the ones still present. Callers hold mu.
func (e *Engine) handleOnline(pubkey string, pod snapshot.Pod) {
	delete(e.strikes, pubkey)

	issues := diagnose(pod)

	active := make(map[string]bool, len(issues))
	for _, iss := range issues {
		active[iss.tag] = true
	}

	// Recovery notices fire once per cleared issue, and only for
	// issues that actually produced an alert.
	for _, tag := range []string{IssueOffline, IssueVersion, IssueUptime, IssueStorage, IssuePaging} {
		key := pubkey + "|" + tag
		if _, alerted := e.lastAlert[key]; alerted && !active[tag] {
			delete(e.lastAlert, key)

			e.notify(Alert{
				Pubkey:    pubkey,
				Issue:     tag,
				Severity:  SeverityRecovered,
				Message:   "issue resolved, pod back to healthy",
				Score:     pod.HealthScore,
				Timestamp: e.opts.Now(),
			})
		}
	}

	for _, iss := range issues {
		e.raise(Alert{
			Pubkey:   pubkey,
			Issue:    iss.tag,
			Severity: iss.severity,
			Message:  iss.message,
			Score:    pod.HealthScore,
		}, e.interval(iss.severity))
	}
}

// raise delivers the alert unless one for the same pod and issue fired
// within the cooldown. Callers hold mu.
func (e *Engine) raise(alert Alert, cooldown time.Duration) {
	now := e.opts.Now()

	key := alert.Pubkey + "|" + alert.Issue
	if last, ok := e.lastAlert[key]; ok && now.Sub(last) < cooldown {
		return
	}

	e.lastAlert[key] = now

	alert.Timestamp = now
	e.notify(alert)
}

func (e *Engine) notify(alert Alert) {
	logger.Info("alert raised",
		"pod", alert.Pubkey,
		"issue", alert.Issue,
		"severity", string(alert.Severity),
	)

	e.notifier.Notify(alert)
}

func (e *Engine) interval(severity Severity) time.Duration {
	if severity == SeverityCritical {
		return e.opts.CriticalInterval
	}

	return e.opts.WarningInterval
}

// issue is one diagnosed problem.
type issue struct {
	tag      string
	severity Severity
	message  string
}

// diagnose applies the health rules to one pod. Critical findings are
// outages in the making; warnings are degradations.
func diagnose(pod snapshot.Pod) []issue {
	var issues []issue

	if pod.Breakdown.Version <= 10 {
		issues = append(issues, issue{
			tag:      IssueVersion,
			severity: SeverityWarning,
			message:  fmt.Sprintf("outdated version %s", pod.Version),
		})
	}

	uptime := time.Duration(pod.UptimeSeconds * float64(time.Second))
	switch {
	case uptime < criticalUptime:
		issues = append(issues, issue{
			tag:      IssueUptime,
			severity: SeverityCritical,
			message:  "rapid restarts, uptime below 30 minutes",
		})
	case uptime < warningUptime:
		issues = append(issues, issue{
			tag:      IssueUptime,
			severity: SeverityWarning,
			message:  "uptime below 24 hours",
		})
	}

	switch {
	case pod.StorageCommitted < criticalStorage:
		issues = append(issues, issue{
			tag:      IssueStorage,
			severity: SeverityCritical,
			message:  "no meaningful storage committed",
		})
	case pod.StorageCommitted < warningStorage:
		issues = append(issues, issue{
			tag:      IssueStorage,
			severity: SeverityWarning,
			message:  "committed storage below the 100 MiB target",
		})
	}

	if pod.PagingHitRate < warningPagingMin {
		issues = append(issues, issue{
			tag:      IssuePaging,
			severity: SeverityWarning,
			message:  fmt.Sprintf("paging hit rate %.0f%% below 85%%", pod.PagingHitRate*100),
		})
	}

	return issues
}
