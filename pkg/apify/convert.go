package apify

import (
	"time"

	"igprofiler/pkg/models"
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ToProfile builds the profile from the first item carrying owner data.
func ToProfile(username string, items []Item) *models.Profile {
	p := &models.Profile{Username: username}
	if len(items) == 0 {
		return p
	}
	it := items[0]
	p.FullName = firstNonEmpty(it.OwnerFullName, it.FullName)
	p.ProfilePicURL = firstNonEmpty(it.ProfilePicURLHD, it.ProfilePicURL, it.OwnerProfilePicURL)
	p.Bio = firstNonEmpty(it.Bio, it.Biography)
	p.Website = firstNonEmpty(it.ExternalURL, it.Website)
	p.OwnerID = it.OwnerID
	p.Followers = it.FollowersCount
	p.Following = it.FollowsCount
	p.Verified = it.Verified
	return p
}

// ToPost normalizes an item. Sidecar children are flattened: image children
// add display URLs, video children add their thumbnail and video URL.
func ToPost(it Item) models.Post {
	post := models.Post{
		ID:        it.ID,
		ShortCode: it.ShortCode,
		Caption:   it.Caption,
		Likes:     max(it.LikesCount, 0),
		Comments:  max(it.CommentsCount, 0),
		URL:       it.URL,
		Timestamp: parseTimestamp(it.Timestamp),
	}
	if post.URL == "" && post.ShortCode != "" {
		post.URL = "https://www.instagram.com/p/" + post.ShortCode + "/"
	}

	switch it.Type {
	case "Image":
		post.Type = models.PostTypeImage
		post.Images = appendNonEmpty(post.Images, it.DisplayURL)
	case "Video":
		post.Type = models.PostTypeVideo
		post.Views = max(it.VideoViewCount, 0)
		post.Images = appendNonEmpty(post.Images, it.DisplayURL)
		post.Videos = appendNonEmpty(post.Videos, it.VideoURL)
	case "Sidecar":
		post.Type = models.PostTypeCarousel
		for _, child := range it.ChildPosts {
			post.Images = appendNonEmpty(post.Images, child.DisplayURL)
			if child.Type == "Video" {
				post.Videos = appendNonEmpty(post.Videos, child.VideoURL)
			}
		}
		// Some actor versions list carousel media only in images.
		if len(post.Images) == 0 {
			for _, u := range it.Images {
				post.Images = appendNonEmpty(post.Images, u)
			}
		}
	default:
		post.Type = models.PostType(it.Type)
		post.Images = appendNonEmpty(post.Images, it.DisplayURL)
	}
	return post
}

func appendNonEmpty(list []string, v string) []string {
	if v == "" {
		return list
	}
	return append(list, v)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
