// Package presence implements the client side of the presence protocol.
//
// A Client holds one WebSocket connection per identity. On open it
// announces itself online, then mirrors peer events into a Table until
// the connection ends. Close announces offline when the connection is
// still up. A dropped connection is reported through Err and Done and is
// never retried here.
//
// Frames are JSON envelopes:
//
//	{"Status":{"user_id":7,"online":true}}
//
// Anything else is discarded.
package presence
