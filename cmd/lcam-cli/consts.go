package main

import "time"

const (
	// Serial devices enumerate slowly after replug; retry opening a few
	// times with growing delays before giving up.
	openRetryCount = 5
	openRetryMin   = 100 * time.Millisecond
	openRetryMax   = 2 * time.Second
)
