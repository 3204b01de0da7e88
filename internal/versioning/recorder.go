package versioning

import "time"

// Recorder receives counters about versioning activity.
type Recorder interface {
	// VersionCreated is called once per appended version; attempts is the
	// number of append attempts it took (1 when there was no contention).
	VersionCreated(ownerType string, attempts int)
	VersionsTrimmed(ownerType string, n int64)
	AppendConflict(ownerType string)
	HookFailed(ownerType string, hook string)
	CaptureDuration(ownerType string, d time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) VersionCreated(string, int)            {}
func (NopRecorder) VersionsTrimmed(string, int64)         {}
func (NopRecorder) AppendConflict(string)                 {}
func (NopRecorder) HookFailed(string, string)             {}
func (NopRecorder) CaptureDuration(string, time.Duration) {}
