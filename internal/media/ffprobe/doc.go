// Package ffprobe runs ffprobe and decodes the parts of its JSON report used
// to vet uploaded video targets: stream kinds, dimensions and duration.
package ffprobe
