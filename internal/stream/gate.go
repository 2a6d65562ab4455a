package stream

// gate is a countdown barrier guarding the emission of one record. Each
// outstanding dependency holds one count; fire runs exactly once, when the
// count reaches zero, unless the gate failed first. Callers hold the session
// lock.
type gate struct {
	pending int
	armed   bool
	fired   bool
	failed  bool
	fire    func()
}

func newGate(fire func()) *gate {
	return &gate{fire: fire}
}

// add registers n more outstanding dependencies.
func (g *gate) add(n int) {
	g.pending += n
}

// arm allows the gate to fire. Dependencies resolved synchronously while
// they are still being registered cannot open it early.
func (g *gate) arm() {
	g.armed = true
	g.check()
}

// done resolves one dependency.
func (g *gate) done() {
	if g.pending > 0 {
		g.pending--
	}
	g.check()
}

// fail closes the gate for good. It reports whether this call failed it.
func (g *gate) fail() bool {
	if g.fired || g.failed {
		return false
	}
	g.failed = true
	return true
}

func (g *gate) check() {
	if !g.armed || g.pending > 0 || g.fired || g.failed {
		return
	}
	g.fired = true
	if g.fire != nil {
		g.fire()
	}
}

type loadStatus int

const (
	loadIdle loadStatus = iota
	loadInFlight
	loadResolved
)

// loadState tracks one shared sub-resource. Loads requested while a fetch is
// in flight wait on it instead of fetching again.
type loadState struct {
	state   loadStatus
	waiters []func(error)
}
