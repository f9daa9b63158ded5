// Package analysis runs one analysis job: it picks a generation strategy for
// the uploaded document, drives the model calls and checkpoints every
// completed unit of work to the job record.
package analysis
