// Package diskarc bridges legacy disk-image filesystems (ProDOS,
// DOS 3.2/3.3, Pascal, CP/M, HFS, and nested sub-volumes) to a single
// generic archive model.
//
// The bridge sits between a low-level per-format filesystem driver and
// callers that want uniform archive semantics: enumerate entries,
// extract forks, bulk-add host files, delete, rename, and transfer files
// between archives. Files on these filesystems may carry two independent
// byte streams (a data fork and a resource fork); the bridge pairs,
// extracts, and materializes both.
//
// Sector and track decoding, on-disk metadata parsing, and container
// serialization are out of scope; they live behind the Driver interface.
package diskarc
