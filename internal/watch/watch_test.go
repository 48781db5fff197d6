package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PodAtlas/internal/score"
	"PodAtlas/internal/snapshot"
)

// recordingNotifier collects delivered alerts.
type recordingNotifier struct {
	alerts []Alert
}

func (n *recordingNotifier) Notify(alert Alert) {
	n.alerts = append(n.alerts, alert)
}

// fakeClock advances manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func healthyPod(pubkey string) snapshot.Pod {
	return snapshot.Pod{
		Pubkey:           pubkey,
		Version:          "0.8.1",
		UptimeSeconds:    48 * 3600,
		StorageCommitted: 200 << 20,
		PagingHitRate:    0.95,
		HealthScore:      95,
		Breakdown:        score.Breakdown{Version: 40, Uptime: 30, Storage: 20, Paging: 5},
	}
}

func snapWith(pods ...snapshot.Pod) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Timestamp: time.Now(),
		Pods:      pods,
		Stats:     snapshot.Stats{TotalPods: len(pods)},
	}
}

func newTestEngine(watchlist []string) (*Engine, *recordingNotifier, *fakeClock) {
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	engine := NewEngine(watchlist, notifier, Options{Now: clock.Now})

	return engine, notifier, clock
}

func TestOfflineRequiresConsecutiveStrikes(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	// First missed cycle: no alert yet
	engine.Observe(snapWith())
	if len(notifier.alerts) != 0 {
		t.Fatalf("alerted after a single missed cycle: %+v", notifier.alerts)
	}

	// Second consecutive miss confirms the outage
	engine.Observe(snapWith())
	if len(notifier.alerts) != 1 || notifier.alerts[0].Severity != SeverityOffline {
		t.Fatalf("got %+v, want one offline alert", notifier.alerts)
	}
}

func TestOneCycleBlipResetsStrikes(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	engine.Observe(snapWith())
	engine.Observe(snapWith(healthyPod("alpha")))
	engine.Observe(snapWith())

	if len(notifier.alerts) != 0 {
		t.Fatalf("blip produced alerts: %+v", notifier.alerts)
	}
}

func TestOfflineAlertCooldown(t *testing.T) {
	engine, notifier, clock := newTestEngine([]string{"alpha"})

	engine.Observe(snapWith())
	engine.Observe(snapWith())

	// Within the cooldown: still offline, no repeat
	clock.Advance(5 * time.Minute)
	engine.Observe(snapWith())

	if len(notifier.alerts) != 1 {
		t.Fatalf("got %d alerts within cooldown, want 1", len(notifier.alerts))
	}

	// Past the cooldown the alert repeats
	clock.Advance(6 * time.Minute)
	engine.Observe(snapWith())

	if len(notifier.alerts) != 2 {
		t.Fatalf("got %d alerts after cooldown, want 2", len(notifier.alerts))
	}
}

func TestDegradedPodAlerts(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	pod := healthyPod("alpha")
	pod.Version = "0.6.2"
	pod.Breakdown.Version = 10
	pod.UptimeSeconds = 600 // restart loop

	engine.Observe(snapWith(pod))

	bySeverity := make(map[Severity][]string)
	for _, a := range notifier.alerts {
		bySeverity[a.Severity] = append(bySeverity[a.Severity], a.Issue)
	}

	if got := bySeverity[SeverityCritical]; len(got) != 1 || got[0] != IssueUptime {
		t.Errorf("critical alerts = %v, want [UPTIME]", got)
	}
	if got := bySeverity[SeverityWarning]; len(got) != 1 || got[0] != IssueVersion {
		t.Errorf("warning alerts = %v, want [VERSION]", got)
	}
}

func TestRecoveryNotifiedOnce(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	degraded := healthyPod("alpha")
	degraded.PagingHitRate = 0.5

	engine.Observe(snapWith(degraded))

	if len(notifier.alerts) != 1 || notifier.alerts[0].Issue != IssuePaging {
		t.Fatalf("got %+v, want one paging alert", notifier.alerts)
	}

	// Issue cleared: exactly one recovery notice
	engine.Observe(snapWith(healthyPod("alpha")))
	engine.Observe(snapWith(healthyPod("alpha")))

	var recoveries int
	for _, a := range notifier.alerts {
		if a.Severity == SeverityRecovered {
			recoveries++
		}
	}

	if recoveries != 1 {
		t.Fatalf("got %d recovery notices, want 1", recoveries)
	}
}

func TestNoRecoveryWithoutPriorAlert(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	engine.Observe(snapWith(healthyPod("alpha")))

	if len(notifier.alerts) != 0 {
		t.Fatalf("healthy pod produced alerts: %+v", notifier.alerts)
	}
}

func TestUnwatchedPodsIgnored(t *testing.T) {
	engine, notifier, _ := newTestEngine([]string{"alpha"})

	broken := healthyPod("beta")
	broken.StorageCommitted = 0

	engine.Observe(snapWith(healthyPod("alpha"), broken))

	if len(notifier.alerts) != 0 {
		t.Fatalf("unwatched pod produced alerts: %+v", notifier.alerts)
	}
}

func TestSmallSnapshotSkipsCycle(t *testing.T) {
	notifier := &recordingNotifier{}
	engine := NewEngine([]string{"alpha"}, notifier, Options{MinNetworkPods: 10})

	// One pod in the snapshot reads as a crawl anomaly, not an outage
	engine.Observe(snapWith(healthyPod("other")))
	engine.Observe(snapWith(healthyPod("other")))

	if len(notifier.alerts) != 0 {
		t.Fatalf("anomalous cycle produced alerts: %+v", notifier.alerts)
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	received := make(chan Alert, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
			t.Errorf("decode alert: %v", err)
		}
		received <- alert
	}))
	t.Cleanup(server.Close)

	notifier := NewWebhookNotifier(server.URL, time.Second)
	notifier.Notify(Alert{Pubkey: "alpha", Issue: IssueOffline, Severity: SeverityOffline})

	select {
	case alert := <-received:
		if alert.Pubkey != "alpha" || alert.Severity != SeverityOffline {
			t.Errorf("unexpected alert: %+v", alert)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never received the alert")
	}
}
