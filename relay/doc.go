// Package relay holds the socket side of the chat relay: the stream and
// datagram listeners, the per-peer connections and the join handshake
// transport. It knows nothing about chat sessions or formatting.
package relay
