package session

import (
	"time"

	"igprofiler/pkg/models"
)

// Status is the phase of a session.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusScraping        Status = "scraping"
	StatusProcessingMedia Status = "processing_media"
	StatusAnalyzing       Status = "analyzing"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

var phaseRank = map[Status]int{
	StatusQueued:          0,
	StatusScraping:        1,
	StatusProcessingMedia: 2,
	StatusAnalyzing:       3,
	StatusCompleted:       4,
	StatusError:           4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := phaseRank[s]
	return ok
}

// Terminal reports whether no further change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Session is a snapshot of one analysis run.
type Session struct {
	ID       string               `json:"session_id"`
	Status   Status               `json:"status"`
	Progress int                  `json:"progress"`
	Message  string               `json:"message"`
	Preview  []models.PostPreview `json:"posts_preview,omitempty"`
	Error    string               `json:"error,omitempty"`
	// Result holds whatever the run produced once completed.
	Result     any       `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Update is a progress report. Zero Status keeps the current phase and a nil
// Preview keeps the current preview.
type Update struct {
	Status   Status
	Progress int
	Message  string
	Preview  []models.PostPreview
}

func (s Session) clone() Session {
	if s.Preview != nil {
		p := make([]models.PostPreview, len(s.Preview))
		for i, pp := range s.Preview {
			pp.Images = append([]string(nil), pp.Images...)
			p[i] = pp
		}
		s.Preview = p
	}
	return s
}
