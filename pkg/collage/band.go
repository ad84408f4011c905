package collage

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MaxCaptionRunes is where captions are cut before drawing.
const MaxCaptionRunes = 200

// Caption is the text shown in the band below the grid.
type Caption struct {
	Likes    int
	Comments int
	Views    int
	// ShowViews adds the view count, set for videos.
	ShowViews bool
	Text      string
	// Kind is the type indicator, e.g. "Single image" or "Video (9 frames)".
	Kind string
}

var (
	textColor  = color.Black
	mutedColor = color.Gray{Y: 0x80}
)

const (
	bandPadding = 10
	lineHeight  = 16
	maxCapLines = 4
)

// StatsLine renders the engagement line.
func (c Caption) StatsLine() string {
	s := fmt.Sprintf("%s likes  %s comments", Thousands(c.Likes), Thousands(c.Comments))
	if c.ShowViews {
		s += fmt.Sprintf("  %s views", Thousands(c.Views))
	}
	return s
}

// KindLabel returns the type indicator for a post with n media items.
func KindLabel(video bool, n int) string {
	switch {
	case video:
		return fmt.Sprintf("Video (%d frames)", n)
	case n > 1:
		return fmt.Sprintf("%d images", n)
	default:
		return "Single image"
	}
}

// TruncateCaption cuts s to MaxCaptionRunes runes, appending "..." when cut.
func TruncateCaption(s string) string {
	if utf8.RuneCountInString(s) <= MaxCaptionRunes {
		return s
	}
	return string([]rune(s)[:MaxCaptionRunes]) + "..."
}

func drawBand(canvas draw.Image, band image.Rectangle, c Caption) {
	draw.Draw(canvas, band, image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{Dst: canvas, Face: face}

	put := func(line string, y int, col color.Color) {
		d.Src = image.NewUniform(col)
		d.Dot = fixed.P(band.Min.X+bandPadding, band.Min.Y+y+ascent)
		d.DrawString(line)
	}

	put(c.StatsLine(), bandPadding, textColor)

	if text := strings.TrimSpace(TruncateCaption(c.Text)); text != "" {
		width := (band.Dx() - 2*bandPadding) / face.Advance
		for i, line := range wrap("Caption: "+text, width, maxCapLines) {
			put(line, bandPadding+30+i*lineHeight, textColor)
		}
	}

	if c.Kind != "" {
		put(c.Kind, band.Dy()-bandPadding-lineHeight, mutedColor)
	}
}

// wrap breaks s into at most maxLines lines of width runes, marking a cut
// with "...".
func wrap(s string, width, maxLines int) []string {
	if width < 4 {
		width = 4
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	if len(lines) > maxLines {
		last := []rune(lines[maxLines-1])
		if len(last) > width-3 {
			last = last[:width-3]
		}
		lines = append(lines[:maxLines-1], string(last)+"...")
	}
	return lines
}

// Thousands formats n with comma separators.
func Thousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
