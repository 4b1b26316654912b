package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello  = "HELLO"
	TypeLayout = "LAYOUT"
	TypeReq    = "REQ"
	TypeRes    = "RES"
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

// IsSupportedVersion accepts any 1.x peer.
func IsSupportedVersion(v string) bool {
	return v == Version || (len(v) > 2 && v[:2] == "1.")
}
