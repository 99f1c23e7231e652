package protocol

// auth (client -> server)
type AuthMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	AgentName       string           `json:"agent_name"`
	Token           string           `json:"token,omitempty"`
	ResumeToken     string           `json:"resume_token,omitempty"`
	Capabilities    AuthCapabilities `json:"capabilities,omitempty"`
}

type AuthCapabilities struct {
	RLEChunks bool `json:"rle_chunks,omitempty"`
	// MaxQueue asks the server for a deeper per-client send buffer.
	// Clamped server-side; zero means the default.
	MaxQueue int `json:"max_queue,omitempty"`
}

// auth_success (server -> client)
type AuthSuccessMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	SessionID       string      `json:"session_id"`
	ResumeToken     string      `json:"resume_token"`
	ChunkEncoding   string      `json:"chunk_encoding"`
	World           WorldParams `json:"world"`
	Spawn           [3]float64  `json:"spawn"`
}

type WorldParams struct {
	TickRateHz   int       `json:"tick_rate_hz"`
	ChunkSize    [3]int    `json:"chunk_size"`
	WorldHeight  int       `json:"world_height"`
	SeaLevel     int       `json:"sea_level"`
	Seed         int64     `json:"seed"`
	BlockPalette DigestRef `json:"block_palette"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// auth_error (server -> client); the connection closes after sending it.
type AuthErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// action (client -> server). One flat struct covers every kind; which fields
// matter depends on Action.
type ActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	// ID is an optional client correlation id echoed in the result.
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`

	// move
	DX float64 `json:"dx,omitempty"`
	DZ float64 `json:"dz,omitempty"`

	// look
	Yaw   float64 `json:"yaw,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`

	// place_block / break_block
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block string `json:"block,omitempty"`

	// chat
	Text string `json:"text,omitempty"`
}

// action_result (server -> client)
type ActionResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id,omitempty"`
	Action          string `json:"action"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`
}

// request_chunks (client -> server)
type RequestChunksMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Chunks          []string `json:"chunks"`
}

// chunk_data (server -> client), one message per requested chunk.
type ChunkDataMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ChunkKey        string `json:"chunk_key"`
	CX              int    `json:"cx"`
	CY              int    `json:"cy"`
	CZ              int    `json:"cz"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
	Digest          string `json:"digest,omitempty"`
}

// tick (server -> client), broadcast after every simulation step.
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version,omitempty"`
	Tick            uint64       `json:"tick"`
	Agents          []AgentState `json:"agents"`
}

type AgentState struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Vel      [3]float64 `json:"vel"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
	Grounded bool       `json:"grounded"`
}

// chat (server -> client), relayed to every connected agent.
type ChatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	FromID          string `json:"from_id"`
	From            string `json:"from"`
	Text            string `json:"text"`
	Tick            uint64 `json:"tick"`
}

// error (server -> client), for failures outside the action pipeline.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
