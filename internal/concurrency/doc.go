// Package concurrency runs independent tasks with a bound on how many are in flight.
//
// Results are returned in input order regardless of completion order.
package concurrency
