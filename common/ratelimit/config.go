package ratelimit

// RouteLimit is the pair of limits applied to one rate-limited route
type RouteLimit struct {
	Scope         string // Key component, e.g. "unlock"
	PerUser       int64  // Requests per identity per window
	Global        int64  // Requests across all identities per window
	WindowSeconds int
}

// DefaultUnlockLimit bounds how often a caller can start a chain verification.
// Each unlock can hold a request open for the whole oracle retry loop.
var DefaultUnlockLimit = RouteLimit{
	Scope:         "unlock",
	PerUser:       30,
	Global:        600,
	WindowSeconds: 60,
}

// Normalize fills zero values from DefaultUnlockLimit
func (l RouteLimit) Normalize() RouteLimit {
	if l.Scope == "" {
		l.Scope = DefaultUnlockLimit.Scope
	}
	if l.PerUser <= 0 {
		l.PerUser = DefaultUnlockLimit.PerUser
	}
	if l.Global <= 0 {
		l.Global = DefaultUnlockLimit.Global
	}
	if l.WindowSeconds <= 0 {
		l.WindowSeconds = DefaultUnlockLimit.WindowSeconds
	}
	return l
}
