// Package transport serves the gateway's operations over a websocket.
//
// Every frame is a JSON object {"event": name, "data": {...}}. The server
// opens each session with a handshake event carrying a fresh session uuid,
// answers every operation frame with exactly one "response" event whose data
// is the dispatch envelope, and ignores "ping". Frames naming an operation
// that is not registered close the connection with a policy-violation status.
package transport
