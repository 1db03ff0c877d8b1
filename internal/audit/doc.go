// Package audit provides an asynchronous decision trail for the gateway.
//
// Every completed request produces one Event describing who asked for
// what, which rule decided the outcome, and where the request was sent.
// Events are handed to a background worker over a buffered channel and
// written as one JSON object per line, so recording a decision never
// blocks the request path. When the buffer is full the event is dropped
// and counted; Close drains whatever is still buffered before the
// writer is released.
package audit
