package sandbox

import (
	"context"
	"runtime"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// memorySamplePeriod is how often a protected call's background monitor
// samples the process heap against the Host's Limited Allocator.
// gopher-lua gives no lua_Alloc-style hook into every table/string
// allocation the way a C embedding would, so the allocator is instead
// fed periodic runtime.MemStats deltas — the same polling idiom
// internal/watchdog uses for the instruction hook it doesn't have
// either.
const memorySamplePeriod = time.Millisecond

// startMemoryMonitor begins accounting heap growth against the Host's
// Limited Allocator for the duration of one protected call, cancelling
// L's context the moment the allocator reports its cap reached. It is
// a no-op when the Host has no Limited Allocator (constructed with New
// instead of NewLimited). The returned stop function restores L's
// prior context and reports whether the limit was hit.
func (sb *Sandbox) startMemoryMonitor(L *lua.LState) (stop func() bool) {
	allocSt := sb.host.AllocState()
	if allocSt == nil {
		return func() bool { return false }
	}

	prior := L.Context()
	parent := prior
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	L.SetContext(ctx)

	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)

	done := make(chan struct{})
	var exceeded bool
	go func() {
		defer close(done)
		ticker := time.NewTicker(memorySamplePeriod)
		defer ticker.Stop()
		var stats runtime.MemStats
		last := baseline.HeapAlloc
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&stats)
				if stats.HeapAlloc > last {
					delta := stats.HeapAlloc - last
					if err := sb.host.AccountBytes(int(delta)); err != nil {
						exceeded = true
						cancel()
						return
					}
				}
				last = stats.HeapAlloc
			}
		}
	}()

	return func() bool {
		cancel()
		<-done
		if prior == nil {
			L.RemoveContext()
		} else {
			L.SetContext(prior)
		}
		return exceeded
	}
}
