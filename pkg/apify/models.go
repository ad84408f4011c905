package apify

// Item is one dataset item produced by the Instagram scraper actor.
type Item struct {
	ID             string   `json:"id"`
	ShortCode      string   `json:"shortCode"`
	Type           string   `json:"type"`
	Caption        string   `json:"caption"`
	Timestamp      string   `json:"timestamp"`
	LikesCount     int      `json:"likesCount"`
	CommentsCount  int      `json:"commentsCount"`
	VideoViewCount int      `json:"videoViewCount"`
	URL            string   `json:"url"`
	DisplayURL     string   `json:"displayUrl"`
	VideoURL       string   `json:"videoUrl"`
	ChildPosts     []Item   `json:"childPosts"`
	Images         []string `json:"images"`

	OwnerUsername      string `json:"ownerUsername"`
	OwnerFullName      string `json:"ownerFullName"`
	OwnerID            string `json:"ownerId"`
	OwnerProfilePicURL string `json:"ownerProfilePicUrl"`

	// Present when addParentData is set.
	FullName        string `json:"fullName"`
	ProfilePicURL   string `json:"profilePicUrl"`
	ProfilePicURLHD string `json:"profilePicUrlHD"`
	Bio             string `json:"bio"`
	Biography       string `json:"biography"`
	ExternalURL     string `json:"externalUrl"`
	Website         string `json:"website"`
	FollowersCount  int    `json:"followersCount"`
	FollowsCount    int    `json:"followsCount"`
	Verified        bool   `json:"verified"`
	Private         bool   `json:"private"`

	// Set instead of post data when the actor could not scrape the profile.
	Error            string `json:"error"`
	ErrorDescription string `json:"errorDescription"`
}

// RunInput is the actor input.
type RunInput struct {
	DirectURLs    []string `json:"directUrls"`
	ResultsType   string   `json:"resultsType"`
	ResultsLimit  int      `json:"resultsLimit"`
	AddParentData bool     `json:"addParentData"`
}
