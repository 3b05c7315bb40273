// Package ipc carries gateway frames over a Unix domain socket.
//
// Frames are single JSON documents terminated by a newline. Conn wraps one
// socket connection and implements gateway.Transport for the outbound side
// while its Serve loop feeds inbound frames to a sink in arrival order.
// Connector plugs the socket into the gateway readiness gate, and Server is
// the listening side used by bridge hosts and tests.
package ipc
