// Package daemonrun assembles the facelane runtime from configuration and
// runs it until the process is signalled.
package daemonrun
