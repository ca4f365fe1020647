// Package logs reads the daemon log file for the CLI.
//
// Last returns the trailing lines of the file with bounded memory, and Follow
// polls for appended lines until the context ends. A Filter narrows output to
// one job or to a minimum level. Both work on console and JSON log formats
// because matching is done on the raw line text.
package logs
