package session

import "time"

type Status string

const (
	StatusActive  Status = "Active"
	StatusWarning Status = "Warning"
	StatusEnded   Status = "Ended"
)

// Session is one confirmed entry with a running clock.
// Invariant: EndTime = StartTime + Duration minutes.
type Session struct {
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	TransactionID string    `json:"transaction_id"`
	Duration      int       `json:"duration"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	RestoreKey    string    `json:"restore_key,omitempty"`
}

// View is the admin-facing snapshot of a session. The restore key never
// leaves the server through a listing.
type View struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	TransactionID    string `json:"transaction_id"`
	Duration         int    `json:"duration"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Status           Status `json:"status"`
}

// NewView computes the remaining clock and status for a session at now.
func NewView(s Session, now time.Time, warningBuffer time.Duration) View {
	remaining := s.EndTime.Sub(now)
	status := StatusActive
	switch {
	case remaining <= 0:
		remaining = 0
		status = StatusEnded
	case remaining <= warningBuffer:
		status = StatusWarning
	}
	return View{
		Name:             s.Name,
		Phone:            s.Phone,
		TransactionID:    s.TransactionID,
		Duration:         s.Duration,
		StartTime:        s.StartTime.Format("15:04:05"),
		EndTime:          s.EndTime.Format("15:04:05"),
		RemainingSeconds: int(remaining.Seconds()),
		Status:           status,
	}
}
