// Package transfer implements the single-connection HTTP transfer engine.
//
// An Engine fetches one resource over HTTP and writes it to a destination file.
// It follows redirect chains, reconnects after mid-stream faults and resumes at
// the exact byte offset already written, and exposes a small state machine
// (paused, running, complete, stopped, error) to a single Observer.
//
// Throughput and ETA are not computed by the engine. A Meter owned by the
// caller turns the cumulative byte counts reported through OnDataReceived into
// a rate sampled at most once per second.
package transfer
