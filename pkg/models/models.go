package models

import "time"

// PostType is the normalized kind of a scraped post.
type PostType string

const (
	PostTypeImage    PostType = "image"
	PostTypeCarousel PostType = "carousel"
	PostTypeVideo    PostType = "video"
)

// Profile is the public account data returned by the scraping service.
type Profile struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	Bio           string `json:"bio"`
	Website       string `json:"website"`
	OwnerID       string `json:"owner_id"`
	Followers     int    `json:"followers"`
	Following     int    `json:"following"`
	Verified      bool   `json:"is_verified"`
}

// Post is one scraped item. It is never mutated after retrieval.
type Post struct {
	ID        string    `json:"id"`
	ShortCode string    `json:"short_code"`
	Type      PostType  `json:"type"`
	Caption   string    `json:"caption"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
	Views     int       `json:"views,omitempty"`
	URL       string    `json:"url"`
	// Images holds display URLs in order; for videos this is the thumbnail.
	Images []string `json:"images"`
	// Videos holds playable video URLs in order.
	Videos []string `json:"videos,omitempty"`
}

// Key returns a stable identifier usable in artifact names.
func (p Post) Key() string {
	switch {
	case p.ShortCode != "":
		return p.ShortCode
	case p.ID != "":
		return p.ID
	default:
		return "post"
	}
}

// PostPreview is the short form of a post shown while a session runs.
type PostPreview struct {
	URL     string   `json:"url"`
	Caption string   `json:"caption"`
	Images  []string `json:"images"`
	Type    PostType `json:"type"`
}

// ArtifactKind tells which derivation produced an artifact.
type ArtifactKind string

const (
	ArtifactCollage   ArtifactKind = "collage"
	ArtifactFrameGrid ArtifactKind = "frame_grid"
)

// Artifact is the derived image written for one post.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	// Name is the key within the artifact store.
	Name string `json:"name"`
	// Path is where the store wrote the artifact.
	Path string `json:"path"`
	// URL is where the HTTP layer serves the artifact.
	URL      string   `json:"url"`
	Cells    int      `json:"cells"`
	Filled   int      `json:"filled"`
	Blank    int      `json:"blank"`
	Frames   int      `json:"frames,omitempty"`
	Failures []string `json:"failures,omitempty"`
}

// WebsiteData is what was extracted from the profile's personal website.
type WebsiteData struct {
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	TextContent string            `json:"text_content,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Emails      []string          `json:"emails,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Analysis is the AI-generated narrative report.
type Analysis struct {
	Summary        Summary        `json:"summary"`
	DetailedReport DetailedReport `json:"detailed_report"`
	// Fallback is set when the analysis was generated without the AI service.
	Fallback bool `json:"fallback,omitempty"`
}

type Summary struct {
	OneSentence string   `json:"one_sentence"`
	Openers     []string `json:"openers"`
	Keywords    []string `json:"keywords"`
}

type DetailedReport struct {
	NameAndHandle       string             `json:"name_and_handle"`
	IntroAndWebsites    string             `json:"intro_and_websites"`
	InterestsAndHobbies string             `json:"interests_and_hobbies"`
	RelationshipStatus  RelationshipStatus `json:"relationship_status"`
	Personality         Personality        `json:"personality"`
	OverallPresence     string             `json:"overall_presence"`
	LifeAttitude        string             `json:"life_attitude"`
	NotableInsights     string             `json:"notable_insights"`
}

// RelationshipStatus carries a confidence percentage in 0..100.
type RelationshipStatus struct {
	Status     string `json:"status"`
	Confidence int    `json:"confidence"`
	Evidence   string `json:"evidence"`
}

// Personality carries a confidence percentage in 0..100.
type Personality struct {
	MBTI       string `json:"mbti"`
	Confidence int    `json:"confidence"`
	Analysis   string `json:"analysis"`
}
