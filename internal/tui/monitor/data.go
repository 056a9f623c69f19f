package monitor

import "time"

// FetchData reads everything the dashboard shows. Store accessors return
// copies, so the snapshot is safe to keep across frames.
func FetchData(s Store, conn Connectivity) Snapshot {
	return Snapshot{
		Transactions: s.Transactions(),
		Reminders:    s.Reminders(),
		Investments:  s.Investments(),
		Operations:   s.Operations(),
		Pending:      s.PendingIDs(),
		State:        s.State(),
		Online:       conn.Online(),
		Timestamp:    time.Now(),
	}
}
