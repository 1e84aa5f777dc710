// Package mailbox provides an unbounded FIFO queue used as an actor
// mailbox.
//
// The queue decouples producers from its single consumer: Put never blocks
// and never drops (until the mailbox is closed), which is what lets the
// store's fire-and-forget operations return immediately regardless of how
// busy the actor is.
//
// This package is internal to keywatch. The store is its only consumer.
package mailbox
