package forum

// RecordPayload is the mutable candidate record handed through the spam
// pipeline. Typed fields cover the columns every check cares about; Extra
// carries any additional columns so log snapshots keep the full row.
type RecordPayload struct {
	RecordID      int64
	InsertUserID  int64
	Username      string
	Name          string
	Email         string
	IPAddress     string
	Body          string
	Story         string
	DiscoveryText string
	Extra         map[string]any
}
