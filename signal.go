package repaint

// DestroySignal notifies subscribers once when the owning object goes
// away. Producers embed one in each buffer; the renderer subscribes so
// GPU resources vanish exactly when the buffer does.
//
// Listeners are owned callbacks: Add returns a handle, dropping the
// subscription is an explicit Remove. Fire is idempotent.
type DestroySignal struct {
	listeners []*DestroyListener
	fired     bool
}

// DestroyListener is one subscription on a DestroySignal.
type DestroyListener struct {
	sig *DestroySignal
	fn  func()
}

// Add subscribes fn to the signal. If the signal has already fired, fn
// runs immediately and the returned handle is inert.
func (s *DestroySignal) Add(fn func()) *DestroyListener {
	l := &DestroyListener{sig: s, fn: fn}
	if s.fired {
		fn()
		l.sig = nil
		return l
	}
	s.listeners = append(s.listeners, l)
	return l
}

// Fired reports whether the signal has fired.
func (s *DestroySignal) Fired() bool { return s.fired }

// Fire runs all listeners and clears them. Subsequent Fire calls do
// nothing; subsequent Add calls run their callback immediately.
//
// Must be delivered on the renderer thread.
func (s *DestroySignal) Fire() {
	if s.fired {
		return
	}
	s.fired = true
	listeners := s.listeners
	s.listeners = nil
	for _, l := range listeners {
		l.sig = nil
		l.fn()
	}
}

// Remove drops the subscription. Safe to call after the signal fired.
func (l *DestroyListener) Remove() {
	if l.sig == nil {
		return
	}
	list := l.sig.listeners
	for i, cand := range list {
		if cand == l {
			l.sig.listeners = append(list[:i], list[i+1:]...)
			break
		}
	}
	l.sig = nil
}
