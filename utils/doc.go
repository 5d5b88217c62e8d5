// Package utils holds the shared helpers used by Lambda functions built on
// this framework: named logger setup, tolerant JSON decoding, retry with
// backoff, nested value lookup, map flattening and slice chunking.
//
// None of the helpers log on their own. Callers obtain a logger with
// SetupLogger and decide what to record.
package utils
