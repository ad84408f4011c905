// Package database persists scraped profiles, posts and analyses in SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/models"
)

// DB handles all database operations
type DB struct {
	db *sql.DB
}

// Stats is what a batch save wrote.
type Stats struct {
	Posts  int `json:"posts_saved"`
	Images int `json:"images_saved"`
	Videos int `json:"videos_saved"`
}

// Counts are table totals.
type Counts struct {
	Users  int `json:"total_users"`
	Posts  int `json:"total_posts"`
	Images int `json:"total_images"`
	Videos int `json:"total_videos"`
}

// Open creates the database file and schema if needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errs.New(errs.ErrorTypeValidation, "database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT,
		profile_pic_url TEXT,
		bio TEXT,
		website TEXT,
		follower_count INTEGER,
		following_count INTEGER,
		is_verified BOOLEAN,
		is_private BOOLEAN,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id),
		short_code TEXT,
		type TEXT,
		caption TEXT,
		timestamp TIMESTAMP,
		likes_count INTEGER,
		comments_count INTEGER,
		view_count INTEGER,
		url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT REFERENCES posts(id),
		position INTEGER,
		url TEXT,
		is_thumbnail BOOLEAN,
		local_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT REFERENCES posts(id),
		position INTEGER,
		url TEXT,
		view_count INTEGER,
		local_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scraping_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		username TEXT,
		posts_fetched INTEGER,
		status TEXT,
		error TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT,
		summary TEXT,
		openers TEXT,
		keywords TEXT,
		detailed_report TEXT,
		confidence_scores TEXT,
		fallback BOOLEAN,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);
	CREATE INDEX IF NOT EXISTS idx_images_post ON images(post_id);
	CREATE INDEX IF NOT EXISTS idx_videos_post ON videos(post_id);
	CREATE INDEX IF NOT EXISTS idx_analysis_username ON analysis_results(username);
	`

	_, err := d.db.Exec(schema)
	return err
}

func userID(p *models.Profile) string {
	if p.OwnerID != "" {
		return p.OwnerID
	}
	return p.Username
}

// SaveProfile inserts or updates a user keyed by username.
func (d *DB) SaveProfile(ctx context.Context, p *models.Profile) error {
	if p == nil || p.Username == "" {
		return errs.New(errs.ErrorTypeValidation, "profile without username")
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, profile_pic_url, bio, website,
			follower_count, following_count, is_verified, is_private, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			id = excluded.id,
			full_name = excluded.full_name,
			profile_pic_url = excluded.profile_pic_url,
			bio = excluded.bio,
			website = excluded.website,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			is_verified = excluded.is_verified,
			updated_at = CURRENT_TIMESTAMP
	`, userID(p), p.Username, p.FullName, p.ProfilePicURL, p.Bio, p.Website,
		p.Followers, p.Following, p.Verified, false)
	return err
}

// postRowID is the posts primary key: the Instagram id, or the shortcode
// when the scraper gave no id.
func postRowID(p models.Post) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Key()
}

// SavePosts stores the profile and its posts in one transaction. Media rows
// of a post are replaced, so saving the same post twice does not duplicate them.
func (d *DB) SavePosts(ctx context.Context, profile *models.Profile, posts []models.Post) (Stats, error) {
	var stats Stats
	if err := d.SaveProfile(ctx, profile); err != nil {
		return stats, err
	}
	owner := userID(profile)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, p := range posts {
		id := postRowID(p)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, user_id, short_code, type, caption, timestamp,
				likes_count, comments_count, view_count, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				caption = excluded.caption,
				likes_count = excluded.likes_count,
				comments_count = excluded.comments_count,
				view_count = excluded.view_count
		`, id, owner, p.ShortCode, string(p.Type), p.Caption, p.Timestamp,
			p.Likes, p.Comments, p.Views, p.URL)
		if err != nil {
			return stats, fmt.Errorf("failed to save post %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE post_id = ?`, id); err != nil {
			return stats, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE post_id = ?`, id); err != nil {
			return stats, err
		}
		for i, u := range p.Images {
			thumb := p.Type == models.PostTypeVideo && i == 0
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO images (post_id, position, url, is_thumbnail) VALUES (?, ?, ?, ?)
			`, id, i, u, thumb); err != nil {
				return stats, err
			}
			stats.Images++
		}
		for i, u := range p.Videos {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO videos (post_id, position, url, view_count) VALUES (?, ?, ?, ?)
			`, id, i, u, p.Views); err != nil {
				return stats, err
			}
			stats.Videos++
		}
		stats.Posts++
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// SessionRecord is one finished run.
type SessionRecord struct {
	SessionID    string
	Username     string
	PostsFetched int
	Status       string
	Error        string
	StartedAt    time.Time
}

// LogSession records a finished run.
func (d *DB) LogSession(ctx context.Context, r SessionRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO scraping_sessions (session_id, username, posts_fetched, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.Username, r.PostsFetched, r.Status, r.Error, r.StartedAt)
	return err
}

type confidenceScores struct {
	Relationship int `json:"relationship_status"`
	Personality  int `json:"personality"`
}

// SaveAnalysis appends an analysis for username.
func (d *DB) SaveAnalysis(ctx context.Context, username string, a *models.Analysis) error {
	if a == nil {
		return errs.New(errs.ErrorTypeValidation, "nil analysis")
	}
	openers, _ := json.Marshal(a.Summary.Openers)
	keywords, _ := json.Marshal(a.Summary.Keywords)
	report, err := json.Marshal(a.DetailedReport)
	if err != nil {
		return err
	}
	scores, _ := json.Marshal(confidenceScores{
		Relationship: a.DetailedReport.RelationshipStatus.Confidence,
		Personality:  a.DetailedReport.Personality.Confidence,
	})

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO analysis_results (username, summary, openers, keywords, detailed_report, confidence_scores, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, username, a.Summary.OneSentence, string(openers), string(keywords), string(report), string(scores), a.Fallback)
	return err
}

// LatestAnalysis returns the most recent analysis for username.
func (d *DB) LatestAnalysis(ctx context.Context, username string) (*models.Analysis, error) {
	var (
		a                         models.Analysis
		openers, keywords, report string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT summary, openers, keywords, detailed_report, fallback
		FROM analysis_results
		WHERE username = ?
		ORDER BY id DESC
		LIMIT 1
	`, username).Scan(&a.Summary.OneSentence, &openers, &keywords, &report, &a.Fallback)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrorTypeNotFound, "no analysis for @"+username)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(openers), &a.Summary.Openers)
	json.Unmarshal([]byte(keywords), &a.Summary.Keywords)
	if err := json.Unmarshal([]byte(report), &a.DetailedReport); err != nil {
		return nil, errs.Decode(err, "stored analysis is corrupt")
	}
	return &a, nil
}

// GetUserPosts returns the stored posts of username, newest first.
func (d *DB) GetUserPosts(ctx context.Context, username string) ([]models.Post, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p.id, p.short_code, p.type, p.caption, p.timestamp,
			p.likes_count, p.comments_count, p.view_count, p.url
		FROM posts p
		JOIN users u ON p.user_id = u.id
		WHERE u.username = ?
		ORDER BY p.timestamp DESC
	`, username)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		var typ string
		if err := rows.Scan(&p.ID, &p.ShortCode, &typ, &p.Caption, &p.Timestamp,
			&p.Likes, &p.Comments, &p.Views, &p.URL); err != nil {
			rows.Close()
			return nil, err
		}
		p.Type = models.PostType(typ)
		posts = append(posts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		if posts[i].Images, err = d.mediaURLs(ctx, "images", posts[i].ID); err != nil {
			return nil, err
		}
		if posts[i].Videos, err = d.mediaURLs(ctx, "videos", posts[i].ID); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (d *DB) mediaURLs(ctx context.Context, table, postID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT url FROM `+table+` WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Counts returns table totals.
func (d *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"users", &c.Users},
		{"posts", &c.Posts},
		{"images", &c.Images},
		{"videos", &c.Videos},
	} {
		if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}
