// Package notify fans events out to independent observers.
//
// Each observer owns a bounded Queue. Publishing never waits on a consumer:
// when an observer's queue is full its oldest value is dropped and counted.
package notify
