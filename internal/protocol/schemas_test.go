package protocol_test

import (
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundtrip marshals a message struct and decodes it back to the generic form
// the validator wants. Validating marshaled structs keeps the Go types and the
// schema files from drifting apart.
func roundtrip(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemasValidateMessages(t *testing.T) {
	validate := func(name string, v any) {
		t.Helper()
		if err := compileSchema(t, name).Validate(roundtrip(t, v)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	validate("auth.schema.json", protocol.AuthMsg{
		Type:            protocol.TypeAuth,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot1",
		Token:           "sekret",
		Capabilities:    protocol.AuthCapabilities{RLEChunks: true, MaxQueue: 16},
	})

	validate("auth_success.schema.json", protocol.AuthSuccessMsg{
		Type:            protocol.TypeAuthSuccess,
		ProtocolVersion: protocol.Version,
		AgentID:         "agent_1",
		SessionID:       "5f0c23a2-9c3b-4e71-b7a5-6d5b1c3f2a10",
		ResumeToken:     "c8b7a6d5-e4f3-4210-9876-543210fedcba",
		ChunkEncoding:   protocol.EncodingRaw,
		World: protocol.WorldParams{
			TickRateHz:   20,
			ChunkSize:    [3]int{16, 16, 16},
			WorldHeight:  256,
			SeaLevel:     64,
			Seed:         1337,
			BlockPalette: protocol.DigestRef{Digest: "deadbeef", Count: 13},
		},
		Spawn: [3]float64{1.5, 65, 1.5},
	})

	validate("auth_error.schema.json", protocol.AuthErrorMsg{
		Type:            protocol.TypeAuthError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrNoPermission,
		Message:         "bad token",
	})

	validate("action.schema.json", protocol.ActionMsg{
		Type:   protocol.TypeAction,
		ID:     "a1",
		Action: protocol.ActionPlaceBlock,
		X:      5, Y: 65, Z: 5,
		Block: "STONE",
	})
	validate("action.schema.json", protocol.ActionMsg{
		Type:   protocol.TypeAction,
		Action: protocol.ActionMove,
		DX:     0.7, DZ: -0.7,
	})
	validate("action.schema.json", protocol.ActionMsg{
		Type:   protocol.TypeAction,
		Action: protocol.ActionChat,
		Text:   "hello",
	})

	validate("action_result.schema.json", protocol.ActionResultMsg{
		Type:   protocol.TypeActionResult,
		ID:     "a1",
		Action: protocol.ActionPlaceBlock,
		OK:     true,
		Tick:   42,
	})
	validate("action_result.schema.json", protocol.ActionResultMsg{
		Type:    protocol.TypeActionResult,
		Action:  protocol.ActionBreakBlock,
		OK:      false,
		Code:    protocol.ErrInvalidTarget,
		Message: "no block",
		Tick:    43,
	})

	validate("request_chunks.schema.json", protocol.RequestChunksMsg{
		Type:   protocol.TypeRequestChunks,
		Chunks: []string{"0,4,0", "-1,4,0", "12,0,-7"},
	})

	validate("chunk_data.schema.json", protocol.ChunkDataMsg{
		Type:     protocol.TypeChunkData,
		ChunkKey: "-1,4,0",
		CX:       -1, CY: 4, CZ: 0,
		Encoding: protocol.EncodingRaw,
		Data:     base64.StdEncoding.EncodeToString(make([]byte, 4096)),
		Digest:   "deadbeef",
	})

	validate("tick.schema.json", protocol.TickMsg{
		Type: protocol.TypeTick,
		Tick: 100,
		Agents: []protocol.AgentState{
			{
				ID:       "agent_1",
				Name:     "bot1",
				Pos:      [3]float64{1.5, 65, 1.5},
				Vel:      [3]float64{0, 0, 0},
				Yaw:      90,
				Pitch:    -15,
				Grounded: true,
			},
		},
	})

	validate("chat.schema.json", protocol.ChatMsg{
		Type:   protocol.TypeChat,
		FromID: "agent_1",
		From:   "bot1",
		Text:   "hello",
		Tick:   100,
	})

	validate("error.schema.json", protocol.ErrorMsg{
		Type:    protocol.TypeError,
		Code:    protocol.ErrProtoBadRequest,
		Message: "malformed json",
	})
}

func TestSchemasRejectMalformed(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		raw    string
	}{
		{"auth missing agent_name", "auth.schema.json",
			`{"type":"auth","protocol_version":"1.0"}`},
		{"auth wrong type tag", "auth.schema.json",
			`{"type":"hello","protocol_version":"1.0","agent_name":"x"}`},
		{"action unknown kind", "action.schema.json",
			`{"type":"action","action":"fly"}`},
		{"place without block", "action.schema.json",
			`{"type":"action","action":"place_block","x":1,"y":2,"z":3}`},
		{"chat text too long", "action.schema.json",
			`{"type":"action","action":"chat","text":"` + tooLongText() + `"}`},
		{"result unknown code", "action_result.schema.json",
			`{"type":"action_result","action":"move","ok":false,"code":"E_NOPE","tick":1}`},
		{"chunk key bad shape", "request_chunks.schema.json",
			`{"type":"request_chunks","chunks":["1;2;3"]}`},
		{"chunks empty", "request_chunks.schema.json",
			`{"type":"request_chunks","chunks":[]}`},
		{"chunk cy out of range", "chunk_data.schema.json",
			`{"type":"chunk_data","chunk_key":"0,16,0","cx":0,"cy":16,"cz":0,"encoding":"raw","data":"AA=="}`},
		{"tick agent missing pos", "tick.schema.json",
			`{"type":"tick","tick":1,"agents":[{"id":"a","vel":[0,0,0],"yaw":0,"pitch":0,"grounded":true}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v any
			if err := json.Unmarshal([]byte(tc.raw), &v); err != nil {
				t.Fatalf("sample not json: %v", err)
			}
			if err := compileSchema(t, tc.schema).Validate(v); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func tooLongText() string {
	b := make([]byte, 257)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
