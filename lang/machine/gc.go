package machine

import "golang.org/x/exp/slices"

// gcHeader is the header every GC-managed allocation carries (§3 "Heap
// object header"): a kind discriminator, GC flags, and an intrusive link
// threading all live allocations into one global list. It is embedded as
// the first field of every heap-allocated type (String, Symbol, Keyword,
// Tuple, Struct, Array, Table, Buffer, Function, NativeFunction, Fiber,
// Abstract, and the internal FunctionEnvironment), which is what lets
// gcObject recover it via a type assertion without per-type bookkeeping.
type gcHeader struct {
	kind Kind
	// mark is the mark bit. After collect(), every object still linked into
	// the GC's list has mark cleared (§8 invariant).
	mark bool
	// foreign marks a "disabled/disowned" object: its backing memory belongs
	// to the host, so the GC must never reallocate or free it (§3, §4.3
	// foreign-backed buffers).
	foreign bool
	next    gcObject
}

func (h *gcHeader) header() *gcHeader { return h }

// gcObject is implemented by every heap-managed type. children pushes each
// Value directly reachable from the receiver onto the mark worklist; leaf
// types (String, Symbol, Keyword, Buffer) implement it as a no-op.
type gcObject interface {
	header() *gcHeader
	gcChildren(push func(Value))
}

// GC implements the non-moving, precise, stop-the-world mark-and-sweep
// collector (§4.2). There is one GC per VM (§5: GC state is per-thread).
//
// Because the host language is itself garbage collected, this collector
// does not reclaim raw memory directly — Go's allocator and collector do
// that once the last reference is dropped. What this pass does, and the
// reason it exists as more than a no-op, is apply the *language-level*
// collection semantics the spec requires: it decides which heap objects are
// still reachable from the roots, unlinks the rest from the tracked set,
// and runs their kind-specific finalizer (releasing foreign/weak links,
// dropping an Environment's captured values, etc.) deterministically at a collection point
// rather than whenever the host GC happens to run.
type GC struct {
	head     gcObject
	worklist []Value // explicit, grow-on-demand mark stack (§4.2 "avoid deep recursion")

	allocated      int64 // bytes allocated since the last collection
	interval       int64 // collect() runs once allocated >= interval
	collections    int
	lockDepth      int
	extraRoots     []Value
	liveAtLastScan int64
}

// GCStats reports collector statistics, consumed by tests asserting the
// sweep invariant (§8).
type GCStats struct {
	Collections int
	LiveObjects int64
	NextCollect int64
	Interval    int64
	Locked      bool
}

func newGC(interval int64) *GC {
	if interval <= 0 {
		interval = 1 << 20
	}
	return &GC{interval: interval}
}

// alloc links obj into the global list, tags its header with kind, and
// charges size bytes against the next-collection threshold (§4.2 "alloc").
// Every constructor in this package (NewArray, NewTable, EndString, ...)
// calls this once the object is otherwise fully initialized.
func (gc *GC) alloc(kind Kind, size int, obj gcObject) {
	h := obj.header()
	h.kind = kind
	h.mark = false
	h.next = gc.head
	gc.head = obj
	gc.allocated += int64(size)
}

// maybeCollect runs collect if accumulated allocation pressure has crossed
// gc_interval (§4.2 "maybe_collect").
func (gc *GC) maybeCollect(roots func(push func(Value))) {
	if gc.lockDepth > 0 {
		return
	}
	if gc.allocated >= gc.interval {
		gc.collect(roots)
	}
}

// collect marks reachable objects from roots, then sweeps. It is a no-op
// while the GC is locked (gclock), matching the documented invariant that
// no collection runs during a host critical section (§4.2).
func (gc *GC) collect(roots func(push func(Value))) {
	if gc.lockDepth > 0 {
		return
	}
	gc.worklist = gc.worklist[:0]
	roots(gc.push)
	for _, v := range gc.extraRoots {
		gc.push(v)
	}
	gc.drain()
	gc.sweep()
	gc.collections++
	gc.allocated = 0
}

// push adds v to the mark worklist, growing it on demand (x/exp/slices
// backs the doubling growth so the worklist never recurses the Go stack —
// §4.2 "must avoid deep recursion via a worklist stack").
func (gc *GC) push(v Value) {
	if v == nil {
		return
	}
	gc.worklist = slices.Grow(gc.worklist, 1)
	gc.worklist = append(gc.worklist, v)
}

// drain repeatedly pops the worklist, marking and expanding each unmarked
// heap object (§4.2 "mark").
func (gc *GC) drain() {
	for len(gc.worklist) > 0 {
		n := len(gc.worklist) - 1
		v := gc.worklist[n]
		gc.worklist = gc.worklist[:n]

		obj, ok := v.(gcObject)
		if !ok {
			continue // non-heap value (Nil, Bool, Number): nothing to mark
		}
		h := obj.header()
		if h.mark {
			continue
		}
		h.mark = true
		obj.gcChildren(gc.push)
	}
}

// sweep walks the intrusive list; unmarked objects are unlinked and
// finalized, marked ones survive with their mark bit cleared (§4.2
// "sweep", §8 invariant).
func (gc *GC) sweep() {
	var head, tail gcObject
	var live int64
	for cur := gc.head; cur != nil; {
		h := cur.header()
		next := h.next
		h.next = nil
		if h.mark {
			h.mark = false
			if head == nil {
				head = cur
			} else {
				tail.header().next = cur
			}
			tail = cur
			live++
		} else {
			finalizeObject(cur)
		}
		cur = next
	}
	gc.head = head
	gc.liveAtLastScan = live
}

// finalizeObject runs the kind-specific release hook for an object the
// sweep determined is unreachable (§4.2 "free payload arrays; release
// weak/foreign links"). Foreign-backed buffers skip payload release
// because the memory does not belong to the GC (§4.2).
func finalizeObject(obj gcObject) {
	switch v := obj.(type) {
	case *Buffer:
		if !v.header().foreign {
			v.bytes = nil
		}
	case *FunctionEnvironment:
		v.values = nil
	case *Abstract:
		finalizeAbstract(v)
	}
}

// GCRoot registers v as an additional root, kept alive until GCUnroot is
// called with an equal value (§4.2 "gcroot/gcunroot" — explicit root
// registration for host code).
func (gc *GC) GCRoot(v Value) {
	gc.extraRoots = append(gc.extraRoots, v)
}

// GCUnroot removes the first root registered with GCRoot that is identical
// (by Go value equality of the interface) to v.
func (gc *GC) GCUnroot(v Value) {
	for i, r := range gc.extraRoots {
		if r == v {
			gc.extraRoots = append(gc.extraRoots[:i], gc.extraRoots[i+1:]...)
			return
		}
	}
}

// GCLock disables collection until a matching GCUnlock (§4.2 "gclock").
// Lock/unlock nest: collection resumes only once the depth returns to zero.
func (gc *GC) GCLock() { gc.lockDepth++ }

// GCUnlock re-enables collection disabled by a prior GCLock.
func (gc *GC) GCUnlock() {
	if gc.lockDepth > 0 {
		gc.lockDepth--
	}
}

// Stats reports a snapshot of collector state.
func (gc *GC) Stats() GCStats {
	return GCStats{
		Collections: gc.collections,
		LiveObjects: gc.liveAtLastScan,
		NextCollect: gc.interval - gc.allocated,
		Interval:    gc.interval,
		Locked:      gc.lockDepth > 0,
	}
}
