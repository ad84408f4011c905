package analyzer

import (
	"fmt"
	"strings"

	"igprofiler/pkg/models"
)

const (
	maxPromptPosts    = 30
	maxCaptionLines   = 20
	maxEngagement     = 10
	maxWebsiteContent = 1000
)

const responseFormat = `Please provide a detailed analysis in the following JSON format:

{
  "summary": {
    "one_sentence": "A one-sentence summary about this person",
    "openers": [
      "First suggested opener to start a conversation",
      "Second suggested opener",
      "Third suggested opener"
    ],
    "keywords": ["keyword1", "keyword2", "keyword3", "keyword4", "keyword5"]
  },
  "detailed_report": {
    "name_and_handle": "Analysis of their name and username",
    "intro_and_websites": "Overview of their bio and personal website",
    "interests_and_hobbies": "Detailed analysis of their interests based on posts",
    "relationship_status": {
      "status": "single/in a relationship/married/unclear",
      "confidence": 75,
      "evidence": "Key evidence supporting this conclusion"
    },
    "personality": {
      "mbti": "ENFP",
      "confidence": 60,
      "analysis": "Detailed personality analysis with specific examples from posts"
    },
    "overall_presence": "Description of their overall social media presence and vibe",
    "life_attitude": "Their lifestyle, values, and approach to life",
    "notable_insights": "Other interesting observations about this person"
  }
}

IMPORTANT:
- Be specific and reference actual content from their posts
- Provide percentage confidence levels (0-100) for relationship status and MBTI
- Base your analysis on evidence, not assumptions
- Be respectful and professional
- Focus on positive insights while being honest
- Return ONLY valid JSON without any additional text or markdown formatting
`

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildPrompt renders the analysis prompt for a profile.
func BuildPrompt(profile *models.Profile, posts []models.Post, site *models.WebsiteData) string {
	var p models.Profile
	if profile != nil {
		p = *profile
	}

	if len(posts) > maxPromptPosts {
		posts = posts[:maxPromptPosts]
	}
	var captions, stats []string
	for i, post := range posts {
		if i < maxCaptionLines {
			captions = append(captions, fmt.Sprintf("Post %d (%s): %s", i+1, post.Type, post.Caption))
		}
		if i < maxEngagement {
			stats = append(stats, fmt.Sprintf("Post %d: %d likes, %d comments", i+1, post.Likes, post.Comments))
		}
	}

	var sb strings.Builder
	sb.WriteString("You are an expert social media analyst. Analyze this Instagram profile and provide a comprehensive report.\n\n")

	sb.WriteString("PROFILE INFORMATION:\n")
	sb.WriteString(fmt.Sprintf("Username: %s\n", orNA(p.Username)))
	sb.WriteString(fmt.Sprintf("Full Name: %s\n", orNA(p.FullName)))
	sb.WriteString(fmt.Sprintf("Bio: %s\n", orNA(p.Bio)))
	sb.WriteString(fmt.Sprintf("Website: %s\n", orNA(p.Website)))

	sb.WriteString("\nPOST CAPTIONS AND CONTENT:\n")
	sb.WriteString(strings.Join(captions, "\n"))
	sb.WriteString("\n\nPOST ENGAGEMENT:\n")
	sb.WriteString(strings.Join(stats, "\n"))
	sb.WriteString("\n")

	if site != nil && site.Error == "" && site.URL != "" {
		sb.WriteString("\n\nPERSONAL WEBSITE DATA:\n")
		sb.WriteString(fmt.Sprintf("Website: %s\n", site.URL))
		sb.WriteString(fmt.Sprintf("Title: %s\n", site.Title))
		sb.WriteString(fmt.Sprintf("Description: %s\n", site.Description))
		sb.WriteString(fmt.Sprintf("Content Preview: %s\n", truncateRunes(site.TextContent, maxWebsiteContent)))
	}

	sb.WriteString("\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}
