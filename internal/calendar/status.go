package calendar

import (
	"time"

	"github.com/vamosnene/vamosnene/internal/storage"
)

const soonWindow = 48 * time.Hour

// Status values reported for the current event.
const (
	StatusLive  = "live"
	StatusSoon  = "soon"
	StatusPanel = "panel"
)

// SessionStatus is a session flagged against a reference time.
type SessionStatus struct {
	storage.Session
	Live bool `json:"live"`
	Soon bool `json:"soon"`
}

type Status struct {
	Status   string          `json:"status"`
	Sessions []SessionStatus `json:"sessions"`
	Next     *SessionStatus  `json:"next_session"`
}

// ComputeStatus reports "live" while a session is running, "soon" when a
// session is still ahead and "panel" otherwise. Next prefers a session
// starting within 48 hours over any later one. Sessions are expected in
// start order.
func ComputeStatus(now time.Time, sessions []storage.Session) *Status {
	st := &Status{Status: StatusPanel, Sessions: make([]SessionStatus, 0, len(sessions))}
	for _, s := range sessions {
		st.Sessions = append(st.Sessions, SessionStatus{
			Session: s,
			Live:    !now.Before(s.StartAt) && !now.After(s.EndAt),
			Soon:    now.Before(s.StartAt) && s.StartAt.Sub(now) < soonWindow,
		})
	}

	for i := range st.Sessions {
		if st.Sessions[i].Live {
			st.Status = StatusLive
			st.Next = &st.Sessions[i]
			return st
		}
	}
	for i := range st.Sessions {
		if st.Sessions[i].Soon {
			st.Status = StatusSoon
			st.Next = &st.Sessions[i]
			return st
		}
	}
	for i := range st.Sessions {
		if st.Sessions[i].StartAt.After(now) {
			st.Status = StatusSoon
			st.Next = &st.Sessions[i]
			return st
		}
	}
	return st
}

// Current picks the event whose start is nearest to now, past or future.
// The earlier round wins a tie.
func Current(events []*storage.Event, now time.Time) *storage.Event {
	var best *storage.Event
	var bestDist time.Duration
	for _, ev := range events {
		d := ev.StartAt.Sub(now)
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = ev, d
		}
	}
	return best
}
