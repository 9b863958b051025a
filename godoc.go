/*
Package chatrelay is a chat room served over two transports at once: TCP
connections exchanging newline-delimited lines, and UDP peers that are each
handed a private socket after a one round-trip join.

relay subdirectory contains the socket pieces which know nothing about chat.

chat subdirectory contains the session registry which knows nothing about sockets.

The Host type is the glue between the relay and chat pieces.
*/
package chatrelay
