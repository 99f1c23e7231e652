package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeAuth          = "auth"
	TypeAuthSuccess   = "auth_success"
	TypeAuthError     = "auth_error"
	TypeAction        = "action"
	TypeActionResult  = "action_result"
	TypeRequestChunks = "request_chunks"
	TypeChunkData     = "chunk_data"
	TypeTick          = "tick"
	TypeChat          = "chat"
	TypeError         = "error"
)

// Action kinds. The set is closed; anything else is rejected before it
// reaches the world loop.
const (
	ActionMove       = "move"
	ActionJump       = "jump"
	ActionLook       = "look"
	ActionPlaceBlock = "place_block"
	ActionBreakBlock = "break_block"
	ActionChat       = "chat"
)

var knownActions = map[string]struct{}{
	ActionMove:       {},
	ActionJump:       {},
	ActionLook:       {},
	ActionPlaceBlock: {},
	ActionBreakBlock: {},
	ActionChat:       {},
}

func IsKnownAction(kind string) bool {
	_, ok := knownActions[kind]
	return ok
}

// Chunk payload encodings. Raw is the default; RLE is negotiated at auth.
const (
	EncodingRaw = "raw"
	EncodingRLE = "rle"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
