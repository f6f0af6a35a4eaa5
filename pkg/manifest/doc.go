/*
Package manifest renders workload manifests for a run.

Each security level maps to one pre-authored variant directory
(00-baseline, 10-networkpolicy, 20-mtls, 25-combined). Rendering selects
the variant, substitutes the PLACEHOLDER_* tokens (the run's logical
identity plus the workload parameters: clients, rounds, seed,
distribution) and splits the multi-document stream into typed Docs for the cluster driver.

The run-id placeholder is mandatory: it is how spawned pods self-report
their owning run, and how the completion detector disambiguates log lines.
A variant missing it, or a missing variant file, is ErrInvalidVariant,
a configuration-fatal condition the scheduler never retries.

Rendering is pure; identical inputs produce identical bytes.
*/
package manifest
