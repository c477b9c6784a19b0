package main

import "time"

const (
	txQueueSize  = 1024 // capacity of async TX ring
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep
