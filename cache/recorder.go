package cache

// Recorder observes store activity. Implementations must be safe for
// concurrent use; see the metrics package for a Prometheus-backed one.
type Recorder interface {
	Hit(Space)
	Miss(Space)
	Stale(Space)
	Set(Space)
	Clear()
}

type nopRecorder struct{}

func (nopRecorder) Hit(Space)   {}
func (nopRecorder) Miss(Space)  {}
func (nopRecorder) Stale(Space) {}
func (nopRecorder) Set(Space)   {}
func (nopRecorder) Clear()      {}
