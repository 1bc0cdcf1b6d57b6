// Package provision drives the multi-step provisioning workflow that turns
// a creation request into a usable instance, and the teardown paths that
// undo it.
//
// Provisioning is an ordered sequence of non-atomic control-plane calls:
// project, service, volume, variables, optional mesh attachment, domain
// request, first deployment, then the registry commit. There is no rollback:
// when a required step fails the workflow stops and the error is returned
// together with the step log collected so far, so an operator can see
// exactly how far it got. Already-created remote resources stay behind for
// manual or retried remediation.
//
// The mesh attachment and the domain request are best-effort: their
// failures are recorded in the step log and never abort the workflow.
package provision
