package commands

import "context"

// cmdContext returns the base context for one-shot CLI commands.
func cmdContext() context.Context {
	return context.Background()
}
