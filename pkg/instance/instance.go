package instance

import (
	"fmt"
	"os"

	"github.com/angelmondragon/chama-backend/pkg/env"
)

// ID names this process in logs and in lock owner tokens. An explicit
// CHAMA_INSTANCE_ID wins, then platform-provided names, then the hostname.
func ID() string {
	if id := env.First("", "CHAMA_INSTANCE_ID", "WORKER_ID", "DYNO", "HOSTNAME"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("pid-%d", os.Getpid())
}
