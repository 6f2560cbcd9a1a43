// Package transport moves protocol messages over a newline-delimited byte
// stream: one JSON envelope per line. It exposes the Sender capability that
// both the live stdout writer and in-memory test fakes implement, and a read
// loop that parses inbound lines and hands them to the node runtime.
package transport
