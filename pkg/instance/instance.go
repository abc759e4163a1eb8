package instance

import "github.com/angelmondragon/schoolorders-backend/pkg/env"

// ID identifies this process in logs. DYNO wins over HOSTNAME.
func ID() string {
	return env.Get("local", "DYNO", "HOSTNAME")
}
