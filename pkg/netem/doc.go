// Package netem applies and removes network impairment profiles on cluster
// nodes using the kernel's tc/netem queueing discipline.
//
// The profile table is fixed: six named profiles ranging from an unimpaired
// baseline to a satellite link with 300ms delay, 5% loss and a 5mbit rate
// cap. Each profile maps onto a single `tc qdisc replace` invocation on the
// node's active interface. Using replace rather than add makes Apply
// idempotent and atomic with respect to an already-installed rule, so a
// crashed run can never leave two stacked impairments.
//
// Reset deletes the root qdisc and treats "nothing installed" as success,
// which lets callers reset unconditionally before and after every run.
//
// Command execution is abstracted behind the Runner interface. LocalRunner
// shells out on the host for single-node clusters; SSHRunner reaches remote
// nodes with key-based authentication.
package netem
