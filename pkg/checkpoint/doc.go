// Package checkpoint persists matrix progress between orchestrator
// invocations as a single YAML file.
//
// Records are keyed by logical run identity, which deliberately excludes
// timestamps: two invocations enumerating the same matrix cell always
// address the same record, so a resumed sweep skips exactly the work that
// already finished. Attempt timestamps live only in artifact directory
// names.
//
// The file format is plain YAML meant for operators. Deleting a record by
// hand (or via Reset) causes that run to be re-executed on the next sweep.
// Writes go through a temp file, fsync and atomic rename so a crash in the
// middle of a sweep never leaves a half-written or unparseable file. A
// file that is unparseable anyway, for example after a bad hand edit, is
// reported as ErrCorrupt and left untouched for manual repair.
package checkpoint
