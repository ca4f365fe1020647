// Package testsupport provides shared fixtures for package tests: temp-dir
// backed configs, engine stub scripts, and store helpers.
package testsupport
