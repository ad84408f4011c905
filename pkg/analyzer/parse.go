package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"igprofiler/pkg/models"
)

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// ParseResponse decodes the model output into an Analysis.
func ParseResponse(text string) (*models.Analysis, error) {
	var a models.Analysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w (response was: %.500s)", err, text)
	}
	a.DetailedReport.RelationshipStatus.Confidence = clamp(a.DetailedReport.RelationshipStatus.Confidence)
	a.DetailedReport.Personality.Confidence = clamp(a.DetailedReport.Personality.Confidence)
	return &a, nil
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

// Fallback builds a generic analysis used when the AI service is unavailable
// or its answer cannot be read.
func Fallback(profile *models.Profile, posts []models.Post) *models.Analysis {
	username, bio := "this user", "No bio available"
	if profile != nil {
		if profile.Username != "" {
			username = profile.Username
		}
		if profile.Bio != "" {
			bio = profile.Bio
		}
	}

	return &models.Analysis{
		Summary: models.Summary{
			OneSentence: fmt.Sprintf("%s is an active Instagram user sharing diverse content.", username),
			Openers: []string{
				"Hey! I noticed your Instagram profile and found your content interesting.",
				"Hi! I saw your recent posts about [topic], would love to connect!",
				"Hello! Your profile caught my attention, especially your posts about [interest].",
			},
			Keywords: []string{"Instagram", "Social Media", "Content Creator", "Active User", "Engaging"},
		},
		DetailedReport: models.DetailedReport{
			NameAndHandle:       "Username: " + username,
			IntroAndWebsites:    bio,
			InterestsAndHobbies: "Based on their posts, they share diverse content on Instagram.",
			RelationshipStatus: models.RelationshipStatus{
				Status:   "unclear",
				Evidence: "Not enough information to determine",
			},
			Personality: models.Personality{
				MBTI:     "N/A",
				Analysis: "Unable to determine personality type with current information",
			},
			OverallPresence: "Active on Instagram with regular posts",
			LifeAttitude:    "Shares content on social media regularly",
			NotableInsights: fmt.Sprintf("This user has %d posts analyzed.", len(posts)),
		},
		Fallback: true,
	}
}
