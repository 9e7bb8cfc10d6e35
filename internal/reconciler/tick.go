package reconciler

import (
	"context"
	"time"

	"ipward/internal/cache"
	"ipward/internal/decision"
	"ipward/internal/sources/siem"
	"ipward/internal/telemetry/metrics"
)

// runTick executes exactly one reconciliation pass (spec §4.6 step 3).
func (r *Reconciler) runTick(ctx context.Context, startedAt time.Time) {
	tick := decision.NewSyncTick(startedAt)
	log := r.logger()

	r.pollLAPI(ctx, tick)
	r.pollSIEM(ctx, tick)
	r.applyCluster(ctx, tick)
	r.applyLocal(ctx, tick)
	r.refreshCurrentlyBanned(ctx)

	tick.Finish(time.Now())
	r.setLastSync(tick.FinishedAt)
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordSyncDuration(tick.Duration().Seconds(), tick.FinishedAt)
		r.cfg.Recorder.Tick()
	}

	log.InfoContext(ctx, "tick complete",
		"to_ban", len(tick.ToBan), "to_unban", len(tick.ToUnban),
		"duration_seconds", tick.Duration().Seconds(),
		"errors", len(tick.AdapterErrors),
	)
}

// pollLAPI implements step b: fetch the delta stream, whitelist-filter and
// drop simulated decisions, and accumulate to_ban/to_unban. The very first
// successful poll is a startup=true replay; a known-decision cache hit on
// that replay still adds the IP locally but skips it on the cluster plane
// (SPEC_FULL.md §15.1).
func (r *Reconciler) pollLAPI(ctx context.Context, tick *decision.SyncTick) {
	if r.cfg.LAPI == nil {
		return
	}

	startup := !r.startupReplayDone
	decisions, err := r.cfg.LAPI.GetDecisions(ctx, startup)
	if err != nil {
		r.recordError(metrics.ComponentLAPI)
		tick.RecordError(metrics.ComponentLAPI, err)
		r.logger().WarnContext(ctx, "lapi poll failed, skipping this tick", "error", err)
		return
	}
	r.startupReplayDone = true

	for _, d := range decisions.New {
		r.recordLAPIDecision()
		if d.Simulated {
			r.logger().Debug("dropping simulated lapi decision", "ip", d.IP)
			continue
		}
		if r.whitelisted(d.IP) {
			continue
		}
		tick.AddBan(d.IP)
		r.recordBan()

		if startup && r.cacheSeen(ctx, d.IP, d.Kind, d.Origin) {
			tick.SkipCluster(d.IP)
		} else {
			r.cacheRecord(ctx, d.IP, d.Kind, d.Origin, d.TTL)
		}
	}

	for _, d := range decisions.Deleted {
		r.recordLAPIDecision()
		if r.whitelisted(d.IP) {
			// Nothing to remove that we would ever have added.
			continue
		}
		tick.AddUnban(d.IP)
		r.recordUnban()
		r.cacheForget(ctx, d.IP, d.Kind, d.Origin)
	}
}

func (r *Reconciler) cacheSeen(ctx context.Context, ip string, kind decision.Kind, origin decision.Origin) bool {
	if r.cfg.Cache == nil {
		return false
	}
	seen, err := r.cfg.Cache.Seen(ctx, cache.Key{IP: ip, Kind: kind, Origin: origin})
	if err != nil {
		r.logger().WarnContext(ctx, "known-decision cache lookup failed", "ip", ip, "error", err)
		return false
	}
	return seen
}

func (r *Reconciler) cacheRecord(ctx context.Context, ip string, kind decision.Kind, origin decision.Origin, ttl time.Duration) {
	if r.cfg.Cache == nil {
		return
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	if err := r.cfg.Cache.Record(ctx, cache.Key{IP: ip, Kind: kind, Origin: origin}, expiresAt); err != nil {
		r.logger().WarnContext(ctx, "known-decision cache record failed", "ip", ip, "error", err)
	}
}

func (r *Reconciler) cacheForget(ctx context.Context, ip string, kind decision.Kind, origin decision.Origin) {
	if r.cfg.Cache == nil {
		return
	}
	if err := r.cfg.Cache.Forget(ctx, cache.Key{IP: ip, Kind: kind, Origin: origin}); err != nil {
		r.logger().WarnContext(ctx, "known-decision cache forget failed", "ip", ip, "error", err)
	}
}

// pollSIEM implements step c: fetch alerts, map them to actions, and
// accumulate to_ban/to_unban; monitor actions are logged only.
func (r *Reconciler) pollSIEM(ctx context.Context, tick *decision.SyncTick) {
	if r.cfg.SIEM == nil {
		return
	}

	alerts, err := r.cfg.SIEM.GetAlerts(ctx, nil, 100)
	if err != nil {
		r.recordError(metrics.ComponentSIEM)
		tick.RecordError(metrics.ComponentSIEM, err)
		r.logger().WarnContext(ctx, "siem poll failed, skipping this tick", "error", err)
		return
	}

	actions := siem.ToActions(alerts)
	for _, a := range actions {
		r.recordSIEMAlert()
		switch a.Kind {
		case decision.KindBan:
			if r.whitelisted(a.IP) {
				continue
			}
			tick.AddBan(a.IP)
			r.recordBan()
		case decision.KindAllow:
			tick.AddUnban(a.IP)
			r.recordUnban()
		case decision.KindMonitor:
			r.logger().InfoContext(ctx, "siem monitor alert", "ip", a.IP, "scenario", a.Scenario)
		}
	}
}

// applyCluster implements step d: one grouped bulk_update call, removes
// before adds, issued only if there is something to do.
func (r *Reconciler) applyCluster(ctx context.Context, tick *decision.SyncTick) {
	if r.cfg.Cluster == nil {
		return
	}
	clusterAdds := tick.ClusterBans()
	if len(clusterAdds) == 0 && len(tick.ToUnban) == 0 {
		return
	}

	r.recordClusterCall()
	failed, err := r.cfg.Cluster.BulkUpdate(ctx, r.cfg.ClusterSet, clusterAdds, tick.ToUnban)
	for i := 0; i < failed; i++ {
		r.recordError(metrics.ComponentCluster)
	}
	if err != nil {
		tick.RecordError(metrics.ComponentCluster, err)
		r.logger().WarnContext(ctx, "cluster bulk_update failed", "error", err)
	}
}

// applyLocal implements step e: bans then unbans, one call per IP, with
// per-IP failure isolation.
func (r *Reconciler) applyLocal(ctx context.Context, tick *decision.SyncTick) {
	if r.cfg.Local == nil {
		return
	}

	for _, ip := range tick.ToBan {
		r.recordLocalOp()
		if err := r.cfg.Local.Add(ctx, ip); err != nil {
			r.recordError(metrics.ComponentLocal)
			r.logger().WarnContext(ctx, "local add failed", "ip", ip, "error", err)
		}
	}
	for _, ip := range tick.ToUnban {
		r.recordLocalOp()
		if err := r.cfg.Local.Remove(ctx, ip); err != nil {
			r.recordError(metrics.ComponentLocal)
			r.logger().WarnContext(ctx, "local remove failed", "ip", ip, "error", err)
		}
	}
}

// refreshCurrentlyBanned implements step f.
func (r *Reconciler) refreshCurrentlyBanned(ctx context.Context) {
	if r.cfg.Local == nil || r.cfg.Recorder == nil {
		return
	}
	members, err := r.cfg.Local.List(ctx)
	if err != nil {
		r.logger().WarnContext(ctx, "local list failed, leaving currently_banned unchanged", "error", err)
		return
	}
	r.cfg.Recorder.UpdateCurrentlyBanned(len(members))
}

func (r *Reconciler) whitelisted(ip string) bool {
	r.mu.Lock()
	wl := r.cfg.Whitelist
	r.mu.Unlock()
	return wl.Contains(ip)
}

func (r *Reconciler) recordBan() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordBan()
	}
}

func (r *Reconciler) recordUnban() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordUnban()
	}
}

func (r *Reconciler) recordLAPIDecision() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordLAPIDecision()
	}
}

func (r *Reconciler) recordSIEMAlert() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordSIEMAlert()
	}
}

func (r *Reconciler) recordClusterCall() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordClusterCall()
	}
}

func (r *Reconciler) recordLocalOp() {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordLocalOp()
	}
}

func (r *Reconciler) recordError(component string) {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordError(component)
	}
}
