// Command bot is a small websocket client that joins a world, wanders around,
// and occasionally builds. It exercises the full wire contract and doubles as
// a smoke-test load generator.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "agent name")
		token = flag.String("token", "", "auth token")
		rle   = flag.Bool("rle", false, "request rle chunk encoding")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	auth := protocol.AuthMsg{
		Type:            protocol.TypeAuth,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Token:           *token,
		Capabilities: protocol.AuthCapabilities{
			RLEChunks: *rle,
		},
	}
	if err := conn.WriteJSON(auth); err != nil {
		logger.Fatalf("send auth: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{
		conn: conn,
		log:  logger,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAuthSuccess:
			var w protocol.AuthSuccessMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.onAuth(&w)

		case protocol.TypeAuthError:
			var e protocol.AuthErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Fatalf("auth failed: %s %s", e.Code, e.Message)

		case protocol.TypeTick:
			var t protocol.TickMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				continue
			}
			b.onTick(&t)

		case protocol.TypeActionResult:
			var res protocol.ActionResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			if !res.OK {
				logger.Printf("action %s (%s) rejected: %s %s", res.Action, res.ID, res.Code, res.Message)
			}

		case protocol.TypeChunkData:
			var cd protocol.ChunkDataMsg
			if err := json.Unmarshal(msg, &cd); err != nil {
				continue
			}
			b.chunks++
			if b.chunks == b.chunksWanted {
				logger.Printf("loaded %d chunks around spawn", b.chunks)
			}

		case protocol.TypeChat:
			var c protocol.ChatMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			logger.Printf("chat %s: %s", c.From, c.Text)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("server error: %s %s", e.Code, e.Message)
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  *log.Logger
	rng  *rand.Rand

	agentID      string
	pos          [3]float64
	chunks       int
	chunksWanted int

	// built holds the last placed position so the bot can break it again.
	built    [3]int
	hasBuilt bool
}

func (b *bot) onAuth(w *protocol.AuthSuccessMsg) {
	b.agentID = w.AgentID
	b.pos = w.Spawn
	b.log.Printf("joined as %s tick_rate=%d seed=%d spawn=%v encoding=%s",
		w.AgentID, w.World.TickRateHz, w.World.Seed, w.Spawn, w.ChunkEncoding)

	// Pull the 3x3 chunk columns around spawn at foot level.
	center := coords.WorldToChunk(coords.Floor(w.Spawn[0]), coords.Floor(w.Spawn[1]), coords.Floor(w.Spawn[2]))
	var keys []string
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			p := coords.ChunkPos{X: center.X + dx, Y: center.Y, Z: center.Z + dz}
			keys = append(keys, p.Key())
		}
	}
	b.chunksWanted = len(keys)
	_ = b.conn.WriteJSON(protocol.RequestChunksMsg{
		Type:            protocol.TypeRequestChunks,
		ProtocolVersion: protocol.Version,
		Chunks:          keys,
	})
}

func (b *bot) onTick(t *protocol.TickMsg) {
	for _, a := range t.Agents {
		if a.ID == b.agentID {
			b.pos = a.Pos
			break
		}
	}

	switch {
	case t.Tick%100 == 0:
		b.send(protocol.ActionMsg{
			Action: protocol.ActionChat,
			ID:     fmt.Sprintf("say_%d", t.Tick),
			Text:   fmt.Sprintf("tick=%d pos=(%.1f, %.1f, %.1f)", t.Tick, b.pos[0], b.pos[1], b.pos[2]),
		})

	case t.Tick%40 == 0:
		// Wander: pick a direction and face it.
		dx := b.rng.Float64()*2 - 1
		dz := b.rng.Float64()*2 - 1
		b.send(protocol.ActionMsg{
			Action: protocol.ActionMove,
			ID:     fmt.Sprintf("move_%d", t.Tick),
			DX:     dx,
			DZ:     dz,
		})

	case t.Tick%160 == 20:
		b.send(protocol.ActionMsg{
			Action: protocol.ActionJump,
			ID:     fmt.Sprintf("jump_%d", t.Tick),
		})

	case t.Tick%160 == 60:
		b.send(protocol.ActionMsg{
			Action: protocol.ActionLook,
			ID:     fmt.Sprintf("look_%d", t.Tick),
			Yaw:    b.rng.Float64() * 360,
			Pitch:  b.rng.Float64()*60 - 30,
		})

	case t.Tick%200 == 50 && !b.hasBuilt:
		// Drop a stone two blocks away at foot level.
		x := coords.Floor(b.pos[0]) + 2
		y := coords.Floor(b.pos[1])
		z := coords.Floor(b.pos[2]) + 2
		b.built = [3]int{x, y, z}
		b.hasBuilt = true
		b.send(protocol.ActionMsg{
			Action: protocol.ActionPlaceBlock,
			ID:     fmt.Sprintf("place_%d", t.Tick),
			X:      x, Y: y, Z: z,
			Block: "STONE",
		})

	case t.Tick%200 == 150 && b.hasBuilt:
		b.hasBuilt = false
		b.send(protocol.ActionMsg{
			Action: protocol.ActionBreakBlock,
			ID:     fmt.Sprintf("break_%d", t.Tick),
			X:      b.built[0], Y: b.built[1], Z: b.built[2],
		})
	}
}

func (b *bot) send(act protocol.ActionMsg) {
	act.Type = protocol.TypeAction
	act.ProtocolVersion = protocol.Version
	if err := b.conn.WriteJSON(act); err != nil {
		b.log.Printf("send %s: %v", act.Action, err)
	}
}
