package rule

import (
	"context"

	"github.com/cranebuild/crane/internal/get"
)

// Exec is the handle through which a rule body asks the engine for values.
// Get and GetAll are the only operations that may block inside a body;
// everything else a body does must be plain computation.
type Exec interface {
	// Get resolves one request and returns its product. The error is
	// either a construction/dispatch error for the request itself or the
	// propagated failure of the rule chain that computed it.
	Get(ctx context.Context, g get.Get) (any, error)

	// GetAll resolves every request in the batch concurrently and returns
	// the products in issue order. The first failure aborts the batch and
	// is returned after all siblings have settled.
	GetAll(ctx context.Context, b get.Batch) ([]any, error)
}

// PathRecorder is optionally implemented by an Exec. A rule body that
// reads the workspace directly reports the paths its result was derived
// from, so the memo layer can drop the node when those paths change.
// Bodies that only compose other rules never need this.
type PathRecorder interface {
	RecordPaths(paths ...string)
}
