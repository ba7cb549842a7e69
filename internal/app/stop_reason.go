package app

// StopReason says why the app is shutting down; it ends up in logs only.
type StopReason string

const (
	StopReasonSignal StopReason = "signal"
	StopReasonFatal  StopReason = "fatal"
	StopReasonManual StopReason = "manual"
)
