package log

// Common field names for structured logging
const (
	FieldComponent = "component"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentScheduler = "scheduler"
	ComponentWorker    = "worker"
)
