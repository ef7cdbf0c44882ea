// Package vogels is a client-side mapper for DynamoDB.
//
// The library is split along the three planes of working with a table:
//
//   - expr builds condition expressions as immutable trees and renders them
//     to wire syntax with deduplicated name/value placeholders.
//   - model declares typed attributes and maps entities in and out of a
//     table; track derives optimistic-concurrency conditions from what each
//     instance last observed, so an Atomic() save only succeeds when nothing
//     changed underneath it.
//   - stream merges a table's change stream shards into one approximately
//     time-ordered sequence, resumable across restarts via an opaque token
//     (persisted by stream/checkpoint).
//
// ddbsdk holds the narrow AWS SDK surfaces, the retry policy and the error
// taxonomy shared by both planes; table describes key schemas.
package vogels
