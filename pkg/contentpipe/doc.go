// Package contentpipe implements the asynchronous content-lifecycle pipeline
// of a content-delivery backend: a content store over pluggable storage
// backends, an immutable per-object version history, a derived-asset pipeline
// producing cached image variants, and lifecycle events fanned out to webhook
// subscribers through an at-least-once job broker.
//
// The package is organized around a Service constructed with functional
// options:
//
//	svc, err := contentpipe.New(
//	    contentpipe.WithRepository(memoryrepo.New()),
//	    contentpipe.WithBlobStore(memorystorage.New()),
//	    contentpipe.WithQueue(broker),
//	    contentpipe.WithEventSink(dispatcher),
//	)
//
// Storage backends live in storage/ (fs, memory, s3), metadata repositories
// in repo/ (memory, postgres), the job broker in queue/ (memory, redis), the
// chunked-upload assembler in upload/, and webhook delivery in webhook/.
//
// Failures on the asynchronous side (variant generation, webhook delivery)
// never fail the originating mutation; they are logged and retried by the
// broker. Synchronous operations return typed errors per failure kind.
package contentpipe
