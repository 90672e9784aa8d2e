// Package kephaslobby defines the connection handler of a multiplayer game lobby.
//
// Clients connect over plain TCP (optionally TLS) or a websocket, open a
// session and issue JSON commands: log in, host games, browse the mod vault,
// manage avatars and report their game state. Every hosted or closed game is
// broadcast to all logged in sessions.
//
// # Architecture
//
// Each connection owns one Session and one outbound writer. The read loop
// decodes frames in arrival order and hands each message to the dispatcher,
// which routes on the "command" key. Replies go through the writer queue so
// a slow client never stalls its read loop or a broadcast.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/kephaslobby/lobby"
//	)
//
//	cfg, err := lobby.LoadConfig("lobby.toml")
//	if err != nil {
//	    return err
//	}
//	st, err := lobby.OpenStore(cfg)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	server, err := lobby.New(cfg, lobby.Deps{Store: st, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	server.Start(ctx)
//	defer server.Stop(context.Background())
//
// # Protocol Format
//
// Every frame is a JSON object prefixed by its length:
//
//	[4 bytes: length (uint32, big-endian)][N bytes: JSON object]
//
// Frames may arrive split across reads or several to a read. Over a
// websocket the same byte stream is carried in binary messages. A frame
// larger than the configured maximum (10MB by default) or one that is not a
// JSON object closes the connection.
//
// # Commands
//
//	ask_session   reply welcome with a fresh session id
//	hello         log in with login/password or a resume token
//	ping          reply pong
//	game_host     host a game and broadcast its game_info
//	modvault      start, like, download and addcomment
//	social        replace friend and foe lists
//	avatar        upload_avatar, list_avatar and select
//	fa_state      report the game client state
//	ladder_maps   set the ladder map pool
//
// Commands other than ask_session and hello require a logged in session.
// A rejected command is answered with a notice when the client can act on
// it and is otherwise logged and dropped.
//
// # Rate Limiting
//
// Each connection has its own token bucket (100 frames/s, burst 200 by
// default). A client that exceeds it is disconnected.
//
// # Timeouts
//
//   - Idle read timeout: 3m
//   - Write timeout: 10s
//   - Outbound queue: 256 frames; a full queue disconnects the client
//   - Store queries: 5s
package kephaslobby
