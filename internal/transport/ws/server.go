// Package ws is the continuous-mode transport: one websocket per agent,
// actions in, tick broadcasts and chunk data out. The transport validates
// shape and protocol version; semantics stay in the world loop.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second

	defaultQueue = 32
	minQueue     = 8
	maxQueue     = 64
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, rle, out := s.handshake(conn)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. The world loop and the reader both feed out; a
		// stalled socket cancels the connection rather than the loop.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		s.readLoop(ctx, conn, agentID, rle, out)

		s.world.Leave() <- agentID
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, agentID string, rle bool, out chan []byte) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, "malformed json") {
				return
			}
			continue
		}
		if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
			if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, "unsupported protocol_version") {
				return
			}
			continue
		}

		switch base.Type {
		case protocol.TypeAction:
			var act protocol.ActionMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, "malformed action") {
					return
				}
				continue
			}
			if !protocol.IsKnownAction(act.Action) {
				if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, fmt.Sprintf("unknown action %q", act.Action)) {
					return
				}
				continue
			}
			s.world.Inbox() <- world.ActionEnvelope{AgentID: agentID, Act: act}

		case protocol.TypeRequestChunks:
			var req protocol.RequestChunksMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, "malformed request_chunks") {
					return
				}
				continue
			}
			if max := s.world.Config().MaxChunkRequests; len(req.Chunks) > max {
				if !s.sendError(ctx, out, protocol.ErrBadRequest, fmt.Sprintf("at most %d chunks per request", max)) {
					return
				}
				continue
			}
			for _, key := range req.Chunks {
				data, res := s.world.ChunkData(key, rle)
				if !res.OK {
					if !s.sendError(ctx, out, res.Code, key+": "+res.Message) {
						return
					}
					continue
				}
				if !s.send(ctx, out, data) {
					return
				}
			}

		default:
			if !s.sendError(ctx, out, protocol.ErrProtoBadRequest, fmt.Sprintf("unknown message type %q", base.Type)) {
				return
			}
		}
	}
}

// handshake runs the auth exchange. A non-empty agentID means the agent is
// registered with the world and must be detached on exit.
func (s *Server) handshake(conn *websocket.Conn) (agentID string, rle bool, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAuth {
		s.refuse(conn, protocol.ErrProtoBadRequest, "expected auth")
		return "", false, nil
	}

	var auth protocol.AuthMsg
	if err := json.Unmarshal(msg, &auth); err != nil {
		s.refuse(conn, protocol.ErrProtoBadRequest, "malformed auth")
		return "", false, nil
	}
	if auth.ProtocolVersion != protocol.Version {
		s.refuse(conn, protocol.ErrProtoBadRequest, "unsupported protocol_version")
		return "", false, nil
	}
	name := strings.TrimSpace(auth.AgentName)
	if name == "" {
		name = "agent"
	}

	queue := auth.Capabilities.MaxQueue
	if queue <= 0 {
		queue = defaultQueue
	}
	if queue < minQueue {
		queue = minQueue
	}
	if queue > maxQueue {
		queue = maxQueue
	}
	out = make(chan []byte, queue)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name:        name,
		Token:       strings.TrimSpace(auth.Token),
		ResumeToken: strings.TrimSpace(auth.ResumeToken),
		RLE:         auth.Capabilities.RLEChunks,
		Out:         out,
		Resp:        respCh,
	}
	resp := <-respCh
	if !resp.OK {
		s.refuse(conn, resp.Code, resp.Message)
		return "", false, nil
	}

	if err := writeJSON(conn, resp.Auth); err != nil {
		// Joined but unreachable; detach so the agent does not linger.
		s.world.Leave() <- resp.Auth.AgentID
		return "", false, nil
	}
	s.log.Printf("agent %s (%s) connected rle=%v queue=%d", resp.Auth.AgentID, name, auth.Capabilities.RLEChunks, queue)

	return resp.Auth.AgentID, auth.Capabilities.RLEChunks, out
}

// refuse sends auth_error and lets the deferred close drop the connection.
func (s *Server) refuse(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.AuthErrorMsg{
		Type:            protocol.TypeAuthError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

// send queues one message for the writer goroutine. Unlike tick broadcasts,
// reader-side replies block until there is room; false means the connection
// is dead.
func (s *Server) send(ctx context.Context, out chan []byte, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	t := time.NewTimer(writeTimeout)
	defer t.Stop()
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}

func (s *Server) sendError(ctx context.Context, out chan []byte, code, message string) bool {
	return s.send(ctx, out, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
