// Package tasks runs image operations over many files with real-time progress reporting.
//
// # Batch Processing
//
// [Processor.Run] takes a list of files and one [services.ImageOptions]:
//
//  1. Validates the options and checks the membership allowance for the whole batch
//  2. Uploads files through a worker pool that shares one [rate.Limiter]
//  3. Optionally downloads each processed image into an output directory
//  4. Records a [models.HistoryEntry] per file and writes a manifest
//
// A failed file never stops the batch. Its error is kept on its [FileResult] and in history.
//
// # Progress Reporting
//
// Progress updates are sent on a caller-supplied channel.
// Updates use select with default, so a slow or absent reader never blocks processing.
//
// # Inputs
//
// [ExpandInputs] turns file and directory arguments into a list of image files.
// Directories are not walked recursively.
package tasks
