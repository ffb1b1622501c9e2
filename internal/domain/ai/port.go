package ai

import "context"

type Client interface {
	// Assess sends the source content to the reasoning service and returns
	// its raw text response, which is expected (but not guaranteed) to
	// contain a JSON vulnerability list.
	Assess(ctx context.Context, sourceContent, projectLabel string) (string, error)
}
