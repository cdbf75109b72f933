package transfer

// Observer receives lifecycle and progress notifications from an Engine.
// Each lifecycle method fires exactly once per matching transition. OnDataReceived
// fires at most once per chunk and only while the engine is running.
//
// Notifications are delivered one at a time in the order the transitions happened,
// possibly on a goroutine other than the one that caused the transition. Done is
// closed only after the last notification of an attempt returns.
type Observer[K comparable] interface {
	OnRunning(src *Engine[K])
	OnPaused(src *Engine[K])
	OnStopped(src *Engine[K])
	OnCompleted(src *Engine[K])
	OnError(src *Engine[K], err error)

	// OnDataReceived reports cumulative bytes written; total is UnknownSize when the server sent no length
	OnDataReceived(src *Engine[K], transferred, total int64)
}

// ObserverFuncs adapts optional per-event functions to the Observer interface.
// Nil fields are skipped.
type ObserverFuncs[K comparable] struct {
	Running      func(src *Engine[K])
	Paused       func(src *Engine[K])
	Stopped      func(src *Engine[K])
	Completed    func(src *Engine[K])
	Error        func(src *Engine[K], err error)
	DataReceived func(src *Engine[K], transferred, total int64)
}

func (f ObserverFuncs[K]) OnRunning(src *Engine[K]) {
	if f.Running != nil {
		f.Running(src)
	}
}

func (f ObserverFuncs[K]) OnPaused(src *Engine[K]) {
	if f.Paused != nil {
		f.Paused(src)
	}
}

func (f ObserverFuncs[K]) OnStopped(src *Engine[K]) {
	if f.Stopped != nil {
		f.Stopped(src)
	}
}

func (f ObserverFuncs[K]) OnCompleted(src *Engine[K]) {
	if f.Completed != nil {
		f.Completed(src)
	}
}

func (f ObserverFuncs[K]) OnError(src *Engine[K], err error) {
	if f.Error != nil {
		f.Error(src, err)
	}
}

func (f ObserverFuncs[K]) OnDataReceived(src *Engine[K], transferred, total int64) {
	if f.DataReceived != nil {
		f.DataReceived(src, transferred, total)
	}
}
