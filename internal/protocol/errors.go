package protocol

const (
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrNotFound    = "E_NOT_FOUND"
	ErrUnsupported = "E_UNSUPPORTED"
	ErrBusy        = "E_BUSY"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:  {},
	ErrNotFound:    {},
	ErrUnsupported: {},
	ErrBusy:        {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
