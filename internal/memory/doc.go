// Package memory implements the memory engine on top of the store and the
// model providers.
//
// Writes are all-or-nothing per call: provider calls happen before the write
// transaction opens and any failure rolls the transaction back. Errors are
// classified with Classify into not_found, validation, provider and
// unexpected.
package memory
