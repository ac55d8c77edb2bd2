package auxiliary

import "errors"

// ErrNotRunning is returned when a command is issued against an auxiliary
// whose worker is not in the Running state. This indicates a programming
// error in the test (command before create, or after delete), so it
// surfaces synchronously instead of being swallowed.
var ErrNotRunning = errors.New("auxiliary is not running")

// ErrNoReport is the "no answer within the timeout" outcome of RunCommand
// and WaitAndGetReport. It is not a failure: the handler may still be
// processing and deliver later. Callers must branch on it explicitly and
// must not confuse it with a non-nil Report carrying an empty payload,
// which is a legitimate response.
var ErrNoReport = errors.New("no report available within timeout")

// ErrQueueFull is returned when the request queue cannot accept another
// command. It signals backpressure from a stalled handler.
var ErrQueueFull = errors.New("request queue is full")
