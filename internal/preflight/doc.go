// Package preflight checks that a project can be indexed and searched:
// the corpus has supported documents, the index directory is writable with
// enough free space, a persisted index loads, and the embedder answers.
//
//	checker := preflight.New(cfg, embedder)
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
