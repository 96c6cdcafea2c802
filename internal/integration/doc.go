// Package integration exercises the fully wired application end to end:
// HTTP API, subscriber pushes, the participant audit trail and the
// conference controller against the live session store.
package integration
