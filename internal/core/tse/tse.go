// Package tse holds the registry model for TSE units, the fiscal
// signing devices orders must eventually be signed by. The devices
// themselves are driven by an external signer process; the core only
// keeps their connection data and lifecycle status.
package tse

// Status is the lifecycle state of a registered TSE unit.
type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusDisabled, StatusFailed:
		return true
	}
	return false
}

// TSE is one registered signing unit.
type TSE struct {
	ID        int64   `json:"id"`
	NodeID    int64   `json:"node_id"`
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	Serial    *string `json:"serial"`
	WsURL     string  `json:"ws_url"`
	WsTimeout float64 `json:"ws_timeout"`
	Password  string  `json:"password"`
}

// NewTSE is the payload for registering a unit; status starts as new.
type NewTSE struct {
	Name      string  `json:"name"`
	Serial    *string `json:"serial"`
	WsURL     string  `json:"ws_url"`
	WsTimeout float64 `json:"ws_timeout"`
	Password  string  `json:"password"`
}

// UpdateTSE is the payload for changing a unit's connection data.
type UpdateTSE struct {
	Name      string  `json:"name"`
	WsURL     string  `json:"ws_url"`
	WsTimeout float64 `json:"ws_timeout"`
	Password  string  `json:"password"`
}
