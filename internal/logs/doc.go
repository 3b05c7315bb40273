// Package logs reads the kamiview log file for the `kamiview logs` command.
//
// Last returns the final lines of the file with bounded memory, and Follow
// keeps polling from a byte offset so new lines are streamed as the gateway
// and download tracker write them. A Filter narrows output to one session or
// component, which matters because every CLI invocation appends to the same
// file.
package logs
