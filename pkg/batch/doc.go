// Package batch runs large item lists through a processing function in
// fixed-size batches.
//
// Batches run one after another in input order so the number of outstanding
// database operations stays bounded. Two modes are exposed as separate
// methods:
//   - Process is best-effort. Items inside a batch are fanned out in chunks of
//     at most Concurrency goroutines; a failing item is reported through
//     OnError and dropped from the results, and the run keeps going.
//   - ProcessInTransaction hands whole batches to the function and stops at
//     the first failing batch.
//
// Both check the context before every batch, so a cancelled run stops at the
// next batch boundary.
package batch
