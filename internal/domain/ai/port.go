package ai

import "context"

// Client summarizes an uploaded scan report for human consumption.
type Client interface {
	Summarize(ctx context.Context, reportJSON string) (string, error)
}
