// Package report assembles the final per-session profile report.
package report

import (
	"time"

	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/models"
)

const (
	previewPosts   = 10
	previewCaption = 100
)

// PostResult is one processed post as handed over by the pipeline.
type PostResult struct {
	Post     models.Post
	Artifact *models.Artifact
	Err      error
	Degraded bool
}

// Input is everything Assemble merges.
type Input struct {
	SessionID   string
	Profile     *models.Profile
	Posts       []PostResult
	Analysis    *models.Analysis
	Website     *models.WebsiteData
	StartedAt   time.Time
	CompletedAt time.Time
}

// Entry is one row of the post gallery.
type Entry struct {
	PostNumber   int                 `json:"post_number"`
	ID           string              `json:"id,omitempty"`
	Type         models.PostType     `json:"type"`
	Caption      string              `json:"caption"`
	Likes        int                 `json:"likes"`
	Comments     int                 `json:"comments"`
	Views        int                 `json:"views,omitempty"`
	URL          string              `json:"url"`
	CollagePath  string              `json:"collage_path"`
	CollageURL   string              `json:"collage_url,omitempty"`
	ArtifactKind models.ArtifactKind `json:"artifact_kind,omitempty"`
	Timestamp    string              `json:"timestamp"`
	Degraded     bool                `json:"degraded,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Totals counts what the pipeline produced.
type Totals struct {
	Posts      int `json:"posts"`
	Collages   int `json:"collages"`
	FrameGrids int `json:"frame_grids"`
	Failed     int `json:"failed"`
}

// Report is immutable once assembled.
type Report struct {
	SessionID   string              `json:"session_id"`
	Username    string              `json:"username"`
	Profile     *models.Profile     `json:"profile"`
	Website     *models.WebsiteData `json:"website_data,omitempty"`
	Analysis    *models.Analysis    `json:"analysis"`
	Gallery     []Entry             `json:"posts_with_collages"`
	Totals      Totals              `json:"totals"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Assemble merges the pipeline results into a Report. Gallery entries keep
// the input order and are numbered from 1.
func Assemble(in Input) *Report {
	r := &Report{
		SessionID:   in.SessionID,
		Profile:     in.Profile,
		Website:     in.Website,
		Analysis:    in.Analysis,
		Gallery:     make([]Entry, 0, len(in.Posts)),
		StartedAt:   in.StartedAt,
		CompletedAt: in.CompletedAt,
	}
	if in.Profile != nil {
		r.Username = in.Profile.Username
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}

	for i, pr := range in.Posts {
		p := pr.Post
		e := Entry{
			PostNumber: i + 1,
			ID:         p.ID,
			Type:       p.Type,
			Caption:    p.Caption,
			Likes:      p.Likes,
			Comments:   p.Comments,
			Views:      p.Views,
			URL:        p.URL,
			Degraded:   pr.Degraded,
		}
		if !p.Timestamp.IsZero() {
			e.Timestamp = p.Timestamp.UTC().Format(time.RFC3339)
		}
		if a := pr.Artifact; a != nil {
			e.CollagePath = a.Path
			e.CollageURL = a.URL
			e.ArtifactKind = a.Kind
			switch a.Kind {
			case models.ArtifactFrameGrid:
				r.Totals.FrameGrids++
			default:
				r.Totals.Collages++
			}
		}
		if pr.Err != nil {
			e.Error = errs.Sanitize(pr.Err)
			r.Totals.Failed++
		}
		r.Gallery = append(r.Gallery, e)
	}
	r.Totals.Posts = len(r.Gallery)
	return r
}

// PostsPreview is the short list shown by status responses while a session runs.
func PostsPreview(posts []models.Post) []models.PostPreview {
	if len(posts) > previewPosts {
		posts = posts[:previewPosts]
	}
	out := make([]models.PostPreview, len(posts))
	for i, p := range posts {
		caption := []rune(p.Caption)
		if len(caption) > previewCaption {
			caption = caption[:previewCaption]
		}
		images := []string{}
		if len(p.Images) > 0 {
			images = append(images, p.Images[0])
		}
		out[i] = models.PostPreview{
			URL:     p.URL,
			Caption: string(caption),
			Images:  images,
			Type:    p.Type,
		}
	}
	return out
}
