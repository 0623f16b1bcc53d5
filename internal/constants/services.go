package constants

// Service names, in start order.
const (
	RELAY_SERVICE   = "relay"
	TRACKER_SERVICE = "tracker"
	STATUS_SERVICE  = "status"
)

// Middleware names, in chain order.
const (
	LOGGING_MIDDLEWARE  = "logging"
	THROTTLE_MIDDLEWARE = "throttle"
)
