package chat

import "time"

// Sentinel is the exact line a peer sends to be removed from the room.
const Sentinel = "Please remove me from the client list (*%$(#&%(*&$#"

// LeftNotice is broadcast on behalf of a session after it was removed.
const LeftNotice = "has left the chat"

// TimeFormat renders the wall clock part of a chat line.
const TimeFormat = "15:04:05"

// Now is the clock used to stamp lines. Tests may replace it.
var Now = time.Now

// Format renders a chat line for msg sent by s, stamped with the current
// local time.
func Format(s *Session, msg string) string {
	return FormatAt(Now(), s, msg)
}

// FormatAt renders a chat line stamped with t.
func FormatAt(t time.Time, s *Session, msg string) string {
	return "(" + t.Local().Format(TimeFormat) + ") " + s.Name() + ": " + msg
}
