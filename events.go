package pktdelay

//
// Published events: OnStatus/OnError subscriber registration and
// dispatch, modeled on the teacher's DPIEngine.AddRule subscription
// pattern. Subscribers are plain function values with no
// back-reference to the engine, so there is no retain cycle with an
// embedding UI to worry about.
//

// OnStatus registers fn to be invoked with a human-readable status
// message whenever the engine transitions state: "Engine started with
// Nms delay.", "Delay updated to Nms.", "Engine stopped." fn is
// invoked from worker/controller goroutines; it must not block and
// must marshal to its own thread if it touches UI state.
func (e *Engine) OnStatus(fn func(text string)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.statusSubs = append(e.statusSubs, fn)
}

// OnError registers fn to be invoked with a human-readable error
// message for each handle-open-failed, capture-error, send-error,
// capture-thread-fatal, or release-thread-fatal event; the kind itself
// is not passed to fn. Same threading contract as OnStatus.
func (e *Engine) OnError(fn func(text string)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.errorSubs = append(e.errorSubs, fn)
}

// emitStatus logs and dispatches a status event, unless the engine
// has begun disposal.
func (e *Engine) emitStatus(text string) {
	e.logf().Info("pktdelay: " + text)
	if e.disposed.Load() {
		return
	}
	e.subsMu.Lock()
	subs := append([]func(string){}, e.statusSubs...)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(text)
	}
}

// emitError logs text tagged with kind (e.g. "send-error") and,
// unless the engine has begun disposal, dispatches text alone to the
// error subscribers.
func (e *Engine) emitError(kind, text string) {
	e.logf().Warnf("pktdelay: %s: %s", kind, text)
	if e.disposed.Load() {
		return
	}
	e.subsMu.Lock()
	subs := append([]func(string){}, e.errorSubs...)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(text)
	}
}

// Dispose permanently suppresses further event delivery, for
// embedding hosts that tear down their engine instance and want to
// guarantee no late event reaches an already-destroyed observer. It
// does not stop the engine; call Stop first.
func (e *Engine) Dispose() {
	e.disposed.Store(true)
}
