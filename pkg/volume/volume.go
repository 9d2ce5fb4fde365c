package volume

import (
	"context"
	"sync"
	"time"

	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/types"
)

// Config holds the FSA's tunables, generalizing the teacher's pkg/reconciler
// hardcoded ticker period into configurable fields.
type Config struct {
	SafetyTickPeriod    time.Duration // periodic tick when nothing else triggers one (§5, default 5s)
	OfflineReplicaGrace time.Duration // §9 open question, resolved as configurable, default 5m
	RPCTimeout          time.Duration // per-action deadline against Node/ChildStore RPCs
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		SafetyTickPeriod:    5 * time.Second,
		OfflineReplicaGrace: 5 * time.Minute,
		RPCTimeout:          30 * time.Second,
	}
}

// maxActionsPerTick bounds the decide-act-reevaluate loop within one tick, a
// defensive backstop against a cyclic rule interaction rather than a
// behavior the spec calls for.
const maxActionsPerTick = 32

// Volume owns the reconciliation coroutine (the FSA) for one volume uuid
// (C6). Replicas and its Nexus are resolved against the Registry on every
// tick by key; Volume never holds direct object pointers across a
// suspension point (an RPC), per spec.md §5.
type Volume struct {
	mu   sync.Mutex
	data types.Volume

	reg   *registry.Registry
	store ChildStore
	cfg   Config

	assembled    bool
	offlineSince map[string]time.Time // node -> first-observed-offline time

	kick chan struct{}
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func newVolume(reg *registry.Registry, store ChildStore, cfg Config, data types.Volume) *Volume {
	if data.Replicas == nil {
		data.Replicas = make(map[string]string)
	}
	return &Volume{
		data:         data,
		reg:          reg,
		store:        store,
		cfg:          cfg,
		offlineSince: make(map[string]time.Time),
		kick:         make(chan struct{}, 1),
	}
}

// UUID returns the volume's identifier.
func (v *Volume) UUID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data.UUID
}

// Snapshot returns a value copy of the volume's observable state.
func (v *Volume) Snapshot() types.Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := v.data
	cp.Replicas = make(map[string]string, len(v.data.Replicas))
	for k, val := range v.data.Replicas {
		cp.Replicas[k] = val
	}
	return cp
}

// Kick schedules a follow-up FSA tick; concurrent kicks while a tick is
// already queued or running coalesce into a single follow-up (§4.6, §5).
func (v *Volume) Kick() {
	select {
	case v.kick <- struct{}{}:
	default:
	}
}

func (v *Volume) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	v.stop = cancel
	v.wg.Add(1)
	go v.run(ctx)
}

// Stop cancels the FSA loop and waits for it to exit.
func (v *Volume) Stop() {
	if v.stop != nil {
		v.stop()
	}
	v.wg.Wait()
}

func (v *Volume) run(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.cfg.SafetyTickPeriod)
	defer ticker.Stop()

	// Run one tick immediately so imported/newly-created volumes converge
	// without waiting a full safety-tick period.
	v.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.kick:
			v.runTick(ctx)
		case <-ticker.C:
			v.runTick(ctx)
		}
	}
}

func (v *Volume) runTick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FSATickDuration)

	logger := log.WithVolumeID(v.UUID())
	for i := 0; i < maxActionsPerTick; i++ {
		acted, forced, rule, err := v.step(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("rule", rule).Msg("fsa tick action failed")
			break
		}
		if rule != "" {
			metrics.FSATicksTotal.WithLabelValues(rule).Inc()
		}
		if forced {
			break
		}
		if !acted {
			break
		}
	}
	v.deriveState()
}

func (v *Volume) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, v.cfg.RPCTimeout)
}
