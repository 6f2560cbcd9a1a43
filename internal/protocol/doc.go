// Package protocol defines the wire format shared by all nodes: the message
// envelope, the typed message bodies for every supported workload, and the
// standard error bodies. Messages travel as newline-delimited JSON; the body
// carries a "type" discriminant and, when a reply is expected, a
// process-unique "msg_id" that the answering side echoes as "in_reply_to".
package protocol
