// Package journal keeps an append-only record of run lifecycle
// transitions in an embedded bbolt database.
//
// Unlike the checkpoint file, which holds only the latest terminal
// outcome per run, the journal keeps every transition of every attempt.
// It exists for post-hoc debugging: when a sweep misbehaves overnight,
// the journal answers in what order states were entered and with what
// failure reason, without trawling process logs.
//
// Layout is one sub-bucket per logical run identity under a single root
// bucket, with monotonically increasing sequence numbers as keys and
// JSON-encoded events as values.
package journal
