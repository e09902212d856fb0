package metrics

// HubObserver receives hub and stream lifecycle events.
type HubObserver interface {
	TopicRegistered()
	TopicTerminated(failed bool)
	RecordPublish()
	ObserveUpdateLatency(seconds float64)
	IncSubscriptions()
	DecSubscriptions()
	RecordSnapshot(total, missed int)
	IncOnline()
	DecOnline()
	RecordPush()
}

type nopObserver struct{}

// Nop discards every event.
func Nop() HubObserver { return nopObserver{} }

func (nopObserver) TopicRegistered() {}
func (nopObserver) TopicTerminated(bool) {}
func (nopObserver) RecordPublish() {}
func (nopObserver) ObserveUpdateLatency(float64) {}
func (nopObserver) IncSubscriptions() {}
func (nopObserver) DecSubscriptions() {}
func (nopObserver) RecordSnapshot(int, int) {}
func (nopObserver) IncOnline() {}
func (nopObserver) DecOnline() {}
func (nopObserver) RecordPush() {}
