// Package ingest runs the background worker that feeds the store.
//
// The Loop is the write side of geostream: it pulls features from a
// source.Source, registers each one in the spatial index, then puts it
// into the expiring cache, then notifies listeners. Per-record errors and
// listener panics are contained and logged; the loop is permanently
// resilient and stops only when its context is cancelled.
//
// A Registry holds the listeners. By default they are invoked synchronously
// on the loop goroutine, preserving ingestion order across listeners; an
// optional WorkerPool offloads invocation for workloads with slow
// listeners.
package ingest
