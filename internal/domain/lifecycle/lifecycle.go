// Package lifecycle holds shared limits for component start and stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds every OnStart/OnStop hook that dials or drains an external system.
const DefaultTimeout = 10 * time.Second
