package bus

// NoticeKind is a registration lifecycle transition.
type NoticeKind int

const (
	SourceRegistered NoticeKind = iota
	SourceStarted
	SourceFailed
	SourceDeregistered
	SinkRegistered
	SinkDeregistered
)

func (k NoticeKind) String() string {
	switch k {
	case SourceRegistered:
		return "source_registered"
	case SourceStarted:
		return "source_started"
	case SourceFailed:
		return "source_failed"
	case SourceDeregistered:
		return "source_deregistered"
	case SinkRegistered:
		return "sink_registered"
	case SinkDeregistered:
		return "sink_deregistered"
	default:
		return "unknown"
	}
}

// Notice reports a lifecycle transition to Config.OnLifecycle.
type Notice struct {
	Kind NoticeKind
	Name string
	// Err is set for SourceFailed.
	Err error
}
