// Package dispatch runs broadcast batches across many accounts.
//
// A batch is a set of Jobs, one per account. Every job gets its own
// goroutine and its own platform session; jobs never share mutable
// state, so one account failing to authenticate, hitting flood control,
// or being banned in a group cannot affect the progress of another.
// RunBatch returns only once every job has finished or aborted.
//
// Delivery semantics
//
// Within one account, groups are messaged strictly in enumeration
// order, with a random pacing delay before every send. A flood-wait
// response suspends only that account for the platform-imposed cooldown
// and then retries the same group. A per-group ban or a transient
// failure skips the group. Every successful send is appended to the
// ledger before the loop advances.
package dispatch
