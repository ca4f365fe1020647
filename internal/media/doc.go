// Package media validates and stores uploaded artifacts.
//
// Sources must be still images. Targets are images or videos and must match
// the job's target kind. Artifacts are streamed to disk under a random name;
// anything that exceeds the size limit, or a video longer than the duration
// limit, is deleted before the error is returned.
package media
