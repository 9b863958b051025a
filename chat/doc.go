/*
`chat` package is the transport-agnostic core of the relay: sessions, the
registry of joined sessions and the formatting of chat lines.

This package should not know anything about sockets. Sessions reach their peer
through an Endpoint, which the transport side provides.
*/

package chat
