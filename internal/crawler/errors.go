package crawler

import "errors"

// ErrAlreadyStarted is returned when Run is called twice on one Scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")
