package dispatch

import "time"

// Event payloads published on the bus. Keep them small and JSON-friendly;
// the audit trail and health surface both consume them.

type BranchSubscribed struct {
	Branch string `json:"branch"`
}

type RecordClaimed struct {
	Path      string `json:"path"`
	Recipient string `json:"recipient,omitempty"`
}

// DispatchResult summarizes one record's fan-out.
type DispatchResult struct {
	Path      string        `json:"path"`
	Recipient string        `json:"recipient"`
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Invalid   int           `json:"invalid"`
	Transient int           `json:"transient"`
	Other     int           `json:"other"`
	Took      time.Duration `json:"took"`

	// invalidAddrs carries the permanently invalid tokens to the
	// reconciliation step; not part of the published payload.
	invalidAddrs []string
}

type RecordQuarantined struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type AddressPruned struct {
	Recipient string `json:"recipient"`
	Address   string `json:"address"`
}
