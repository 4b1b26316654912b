package protocol

import (
	"encoding/json"

	"furnacebot.ai/internal/geom"
)

// HELLO (controller -> host)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// LAYOUT (host -> controller): sent once after HELLO.
type LayoutMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Layout          geom.Layout `json:"layout"`
}

// REQ (controller -> host)
type ReqMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// RES (host -> controller)
type ResMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	OK              bool            `json:"ok"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Methods served by the host.
const (
	MethodNearestTag   = "nearest_tag"
	MethodHoverText    = "hover_text"
	MethodFindImage    = "find_image"
	MethodMoveTo       = "move_to"
	MethodClick        = "click"
	MethodRotateCamera = "rotate_camera"
	MethodLog          = "log"
	MethodProgress     = "progress"
	MethodLogout       = "logout"
	MethodStop         = "stop"
)

type NearestTagParams struct {
	Color string `json:"color"`
}

// FoundResult answers nearest_tag and find_image; Rect is meaningful only when Found.
type FoundResult struct {
	Found bool      `json:"found"`
	Rect  geom.Rect `json:"rect"`
}

type HoverTextParams struct {
	Contains string `json:"contains"`
	Color    string `json:"color"`
}

type HoverTextResult struct {
	Match bool `json:"match"`
}

type FindImageParams struct {
	Path       string    `json:"path"`
	Region     geom.Rect `json:"region"`
	Confidence float64   `json:"confidence"`
}

type MoveToParams struct {
	Point geom.Point `json:"point"`
}

type RotateCameraParams struct {
	Degrees int `json:"degrees"`
}

type LogParams struct {
	Text string `json:"text"`
}

type ProgressParams struct {
	Fraction float64 `json:"fraction"`
}
