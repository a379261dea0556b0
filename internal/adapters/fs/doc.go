// Package fs implements the on-disk buffer lifecycle.
//
// Layout under the data directory:
//
//	pending/<name>.csv.active   ACTIVE, receiving appends
//	pending/<name>.csv          SEALED, awaiting upload
//	uploaded/<name>.csv         UPLOADED, retained permanently
//
// Names are "<UTC yyyymmdd_hhmmss.mmm>_<sensor>.csv", so a lexicographic sort
// of the pending directory is the creation order. Every transition is an
// os.Rename inside the data directory and therefore atomic on POSIX
// filesystems: the upload worker can never observe a half-sealed file.
package fs
