// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package websocket streams formatted log entries to live tail clients.

The livetail appender hands every formatted payload to the Hub, which
fans it out over WebSocket to all connected tail sessions. The stream is
one-way: clients receive payloads and answer pings, nothing else. It
uses the gorilla/websocket library with a hub-client architecture.

Key Components:

  - Hub: accepts payloads from the livetail appender and broadcasts them
  - Client: one WebSocket connection with read/write goroutines
  - Relay: feeds payloads from a broker subscription into the hub, so
    one node can tail a fleet whose appenders publish to NATS

Architecture:

	entry → livetail appender → Hub → Client1, Client2, ...
	NATS subject → Relay ──────┘

Payloads are opaque bytes. The hub never parses them; a JSON layout
yields JSON lines on the wire, a pattern layout yields plain text.

Connection Lifecycle:

 1. Client connects via HTTP upgrade on the tail endpoint
 2. Hub registers the client
 3. Client starts read/write goroutines
 4. Hub delivers each payload to all clients in ID order
 5. Client disconnects, or is dropped when its send buffer fills
 6. Hub unregisters the client and cleans up

A tail stream has no replay. When the hub's broadcast queue or a
client's send buffer fills, payloads are dropped and counted rather
than letting a slow consumer back up the log pipeline.

Timing:

  - writeWait: 10 seconds per write
  - pongWait: 60 seconds before a silent connection is considered dead
  - pingPeriod: 54 seconds, must stay below pongWait

See Also:

  - github.com/gorilla/websocket: underlying WebSocket library
  - internal/appender: the livetail appender that feeds the hub
  - internal/api: the tail endpoint that upgrades connections
*/
package websocket
