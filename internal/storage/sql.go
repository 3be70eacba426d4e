// internal/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var logger = utils.NewComponentLogger("storage")

// sqlGateway implements Gateway over database/sql for all three backends.
type sqlGateway struct {
	db      *sql.DB
	d       dialect
	caps    Capabilities
	archive *mongoArchive
}

func openSQL(cfg config.StorageConfig) (*sqlGateway, error) {
	d, err := dialectFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.Name() == BackendSQLite {
		if dir := filepath.Dir(strings.SplitN(dsn, "?", 2)[0]); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
		}
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Backend, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Backend, err)
	}

	if d.Name() == BackendSQLite {
		// single writer keeps SQLite out of SQLITE_BUSY territory
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := ensureSchema(db, d); err != nil {
		db.Close()
		return nil, err
	}

	caps := d.Capabilities()
	if d.Name() == BackendSQLite {
		caps.FullTextSearch = probeFTS(db)
	}

	logger.WithFields(map[string]interface{}{
		"backend":          cfg.Backend,
		"full_text_search": caps.FullTextSearch,
		"audit_trail":      caps.AuditTrail,
	}).Info("storage ready")

	return &sqlGateway{db: db, d: d, caps: caps}, nil
}

func (g *sqlGateway) Capabilities() Capabilities { return g.caps }

func (g *sqlGateway) Close() error {
	if g.archive != nil {
		g.archive.Close()
	}
	return g.db.Close()
}

func asJSON(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

func fromJSON(raw sql.NullString, dst interface{}) {
	if raw.Valid && raw.String != "" {
		_ = json.Unmarshal([]byte(raw.String), dst)
	}
}

// SavePost upserts on (platform, post_id). The returned flag reports
// whether a new row was created; on conflict the fresh scrape wins and
// updated_at is refreshed. The flag comes from the insert's rows-affected
// count, so concurrent saves of the same key report exactly one create.
func (g *sqlGateway) SavePost(ctx context.Context, post *types.Post) (bool, error) {
	now := time.Now().UTC()
	cols := []string{
		"platform", "post_id", "author", "content", "url",
		"media_urls", "hashtags", "mentions",
		"likes", "comments", "shares", "views", "engagement_score",
		"is_verified", "is_retweet", "is_reply", "parent_post_id",
		"published_at", "scraped_at", "raw_data", "created_at", "updated_at",
	}
	updateCols := []string{
		"author", "content", "url", "media_urls", "hashtags", "mentions",
		"likes", "comments", "shares", "views", "engagement_score",
		"is_verified", "is_retweet", "is_reply", "parent_post_id",
		"published_at", "scraped_at", "raw_data", "updated_at",
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO posts (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders)

	res, err := g.db.ExecContext(ctx,
		g.d.Rebind(g.d.InsertIgnore(insert, []string{"platform", "post_id"})),
		string(post.Platform), post.ID, post.Author, post.Content, post.URL,
		asJSON(post.MediaURLs), asJSON(post.Hashtags), asJSON(post.Mentions),
		post.Likes, post.Comments, post.Shares, post.Views, post.EngagementScore,
		post.IsVerified, post.IsRetweet, post.IsReply, post.ParentPostID,
		post.PublishedAt, post.ScrapedAt, asJSON(post.RawData), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("saving post %s: %w", post.NaturalKey(), err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("saving post %s: %w", post.NaturalKey(), err)
	}
	created := inserted > 0

	if !created {
		sets := make([]string, len(updateCols))
		for i, c := range updateCols {
			sets[i] = c + " = ?"
		}
		update := fmt.Sprintf("UPDATE posts SET %s WHERE platform = ? AND post_id = ?",
			strings.Join(sets, ", "))

		_, err = g.db.ExecContext(ctx, g.d.Rebind(update),
			post.Author, post.Content, post.URL,
			asJSON(post.MediaURLs), asJSON(post.Hashtags), asJSON(post.Mentions),
			post.Likes, post.Comments, post.Shares, post.Views, post.EngagementScore,
			post.IsVerified, post.IsRetweet, post.IsReply, post.ParentPostID,
			post.PublishedAt, post.ScrapedAt, asJSON(post.RawData), now,
			string(post.Platform), post.ID,
		)
		if err != nil {
			return false, fmt.Errorf("updating post %s: %w", post.NaturalKey(), err)
		}
	}

	if g.caps.FullTextSearch && g.d.Name() == BackendSQLite {
		g.indexPostFTS(ctx, post)
	}
	if g.archive != nil && post.RawData != nil {
		if err := g.archive.Store(ctx, post); err != nil {
			logger.WithError(err).Warn("archive write failed")
		}
	}

	return created, nil
}

func (g *sqlGateway) indexPostFTS(ctx context.Context, post *types.Post) {
	_, _ = g.db.ExecContext(ctx,
		`DELETE FROM posts_fts WHERE post_id = ? AND platform = ?`,
		post.ID, string(post.Platform))
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO posts_fts (content, author, platform, post_id) VALUES (?, ?, ?, ?)`,
		post.Content, post.Author, string(post.Platform), post.ID)
	if err != nil {
		logger.WithError(err).Warn("fts index write failed")
	}
}

func (g *sqlGateway) SaveAuthor(ctx context.Context, a *types.Author) error {
	now := time.Now().UTC()
	cols := []string{
		"platform", "user_id", "username", "display_name", "bio",
		"followers_count", "following_count", "posts_count",
		"is_verified", "is_private", "metadata", "created_at", "updated_at",
	}
	updateCols := []string{
		"username", "display_name", "bio", "followers_count",
		"following_count", "posts_count", "is_verified", "is_private",
		"metadata", "updated_at",
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO authors (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), placeholders,
		g.d.UpsertSuffix([]string{"platform", "user_id"}, updateCols))

	_, err := g.db.ExecContext(ctx, g.d.Rebind(query),
		string(a.Platform), a.UserID, a.Username, a.DisplayName, a.Bio,
		a.FollowersCount, a.FollowingCount, a.PostsCount,
		a.IsVerified, a.IsPrivate, asJSON(a.Metadata), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving author %s/%s: %w", a.Platform, a.Username, err)
	}
	return nil
}

// SaveSession upserts on session_id, covering both the initial open and
// every later counter or status update.
func (g *sqlGateway) SaveSession(s *types.Session) error {
	cols := []string{
		"session_id", "platform", "target", "target_type", "status",
		"total_posts", "successful_posts", "failed_posts",
		"start_time", "end_time", "duration_seconds", "last_error", "config",
	}
	updateCols := []string{
		"status", "total_posts", "successful_posts", "failed_posts",
		"end_time", "duration_seconds", "last_error",
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO scraping_sessions (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), placeholders,
		g.d.UpsertSuffix([]string{"session_id"}, updateCols))

	var end interface{}
	if s.EndTime != nil {
		end = *s.EndTime
	}

	_, err := g.db.Exec(g.d.Rebind(query),
		s.SessionID, string(s.Platform), s.Target, string(s.TargetType), string(s.Status),
		s.TotalPosts, s.SuccessfulPosts, s.FailedPosts,
		s.StartTime, end, s.Duration.Seconds(), s.LastError, asJSON(s.Config),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", s.SessionID, err)
	}
	return nil
}

// SaveError appends one error record. The table is append-only.
func (g *sqlGateway) SaveError(rec *types.ErrorRecord) error {
	query := g.d.Rebind(`INSERT INTO error_records
		(session_id, error_type, message, code, stack_trace, context, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := g.db.Exec(query,
		rec.SessionID, rec.Type, rec.Message, rec.Code, rec.StackTrace,
		asJSON(rec.Context), rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("recording error: %w", err)
	}
	return nil
}

func (g *sqlGateway) SaveProxyState(ctx context.Context, p *ProxyState) error {
	cols := []string{
		"url", "proxy_type", "username", "country", "region", "status",
		"success_count", "failure_count", "consecutive_failures",
		"last_response_ms", "uptime_percentage", "last_checked",
	}
	updateCols := []string{
		"status", "success_count", "failure_count", "consecutive_failures",
		"last_response_ms", "uptime_percentage", "last_checked",
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO proxies (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), placeholders,
		g.d.UpsertSuffix([]string{"url"}, updateCols))

	_, err := g.db.ExecContext(ctx, g.d.Rebind(query),
		p.URL, p.Type, p.Username, p.Country, p.Region, string(p.Status),
		p.SuccessCount, p.FailureCount, p.ConsecutiveFailures,
		p.LastResponseMS, p.UptimePercentage, p.LastChecked,
	)
	if err != nil {
		return fmt.Errorf("saving proxy state: %w", err)
	}
	return nil
}

func (g *sqlGateway) SaveFingerprint(ctx context.Context, f *FingerprintState) error {
	cols := []string{
		"fingerprint", "browser", "os", "device",
		"usage_count", "last_used", "is_active",
	}
	updateCols := []string{"usage_count", "last_used", "is_active"}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO user_agents (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), placeholders,
		g.d.UpsertSuffix([]string{"fingerprint"}, updateCols))

	_, err := g.db.ExecContext(ctx, g.d.Rebind(query),
		f.Fingerprint, f.Browser, f.OS, f.Device,
		f.UsageCount, f.LastUsed, f.Active,
	)
	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

func (g *sqlGateway) SaveRateWindow(ctx context.Context, w *RateWindow) error {
	cols := []string{
		"platform", "proxy_url", "endpoint",
		"requests_made", "requests_allowed", "window_start", "reset_time",
	}
	updateCols := []string{"requests_made", "requests_allowed", "window_start", "reset_time"}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO rate_limit_windows (%s) VALUES (%s)%s",
		strings.Join(cols, ", "), placeholders,
		g.d.UpsertSuffix([]string{"platform", "proxy_url", "endpoint"}, updateCols))

	_, err := g.db.ExecContext(ctx, g.d.Rebind(query),
		string(w.Platform), w.ProxyURL, w.Endpoint,
		w.RequestsMade, w.RequestsAllowed, w.WindowStart, w.ResetTime,
	)
	if err != nil {
		return fmt.Errorf("saving rate window: %w", err)
	}
	return nil
}

const postColumns = `platform, post_id, author, content, url,
	media_urls, hashtags, mentions,
	likes, comments, shares, views, engagement_score,
	is_verified, is_retweet, is_reply, parent_post_id,
	published_at, scraped_at, raw_data`

func scanPost(row interface{ Scan(...interface{}) error }) (*types.Post, error) {
	var p types.Post
	var platform string
	var mediaURLs, hashtags, mentions, rawData sql.NullString
	var author, url, parentID, content sql.NullString
	var publishedAt, scrapedAt sql.NullTime

	err := row.Scan(
		&platform, &p.ID, &author, &content, &url,
		&mediaURLs, &hashtags, &mentions,
		&p.Likes, &p.Comments, &p.Shares, &p.Views, &p.EngagementScore,
		&p.IsVerified, &p.IsRetweet, &p.IsReply, &parentID,
		&publishedAt, &scrapedAt, &rawData,
	)
	if err != nil {
		return nil, err
	}

	p.Platform = types.Platform(platform)
	p.Author = author.String
	p.Content = content.String
	p.URL = url.String
	p.ParentPostID = parentID.String
	if publishedAt.Valid {
		p.PublishedAt = publishedAt.Time
	}
	if scrapedAt.Valid {
		p.ScrapedAt = scrapedAt.Time
	}
	fromJSON(mediaURLs, &p.MediaURLs)
	fromJSON(hashtags, &p.Hashtags)
	fromJSON(mentions, &p.Mentions)
	fromJSON(rawData, &p.RawData)

	return &p, nil
}

func (g *sqlGateway) GetPost(ctx context.Context, platform types.Platform, postID string) (*types.Post, error) {
	query := g.d.Rebind(fmt.Sprintf(
		"SELECT %s FROM posts WHERE platform = ? AND post_id = ?", postColumns))
	post, err := scanPost(g.db.QueryRowContext(ctx, query, string(platform), postID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading post %s:%s: %w", platform, postID, err)
	}
	return post, nil
}

func (g *sqlGateway) GetPosts(ctx context.Context, q PostQuery) ([]*types.Post, error) {
	var where []string
	var args []interface{}
	if q.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(q.Platform))
	}
	if q.Author != "" {
		where = append(where, "author = ?")
		args = append(args, q.Author)
	}
	if !q.Since.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, q.Since)
	}

	query := fmt.Sprintf("SELECT %s FROM posts", postColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := g.db.QueryContext(ctx, g.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var posts []*types.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SearchPosts runs full-text search where the backend supports it and
// falls back to a LIKE scan where it does not.
func (g *sqlGateway) SearchPosts(ctx context.Context, search string, limit int) ([]*types.Post, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	var args []interface{}
	switch {
	case g.caps.FullTextSearch && g.d.Name() == BackendSQLite:
		query = fmt.Sprintf(`SELECT %s FROM posts p
			JOIN posts_fts f ON f.post_id = p.post_id AND f.platform = p.platform
			WHERE posts_fts MATCH ? LIMIT %d`, prefixed(postColumns, "p."), limit)
		args = []interface{}{search}
	case g.caps.FullTextSearch && g.d.Name() == BackendPostgres:
		query = fmt.Sprintf(`SELECT %s FROM posts
			WHERE content_tsv @@ plainto_tsquery('simple', ?) LIMIT %d`, postColumns, limit)
		args = []interface{}{search}
	default:
		query = fmt.Sprintf(`SELECT %s FROM posts
			WHERE content LIKE ? LIMIT %d`, postColumns, limit)
		args = []interface{}{"%" + search + "%"}
	}

	rows, err := g.db.QueryContext(ctx, g.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("searching posts: %w", err)
	}
	defer rows.Close()

	var posts []*types.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func prefixed(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (g *sqlGateway) GetSessions(ctx context.Context, platform types.Platform, limit int) ([]types.Session, error) {
	query := `SELECT session_id, platform, target, target_type, status,
		total_posts, successful_posts, failed_posts,
		start_time, end_time, duration_seconds, last_error
		FROM scraping_sessions`
	var args []interface{}
	if platform != "" {
		query += " WHERE platform = ?"
		args = append(args, string(platform))
	}
	query += " ORDER BY start_time DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := g.db.QueryContext(ctx, g.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var s types.Session
		var platform, targetType, status string
		var end sql.NullTime
		var durationSec sql.NullFloat64
		var lastError sql.NullString

		if err := rows.Scan(
			&s.SessionID, &platform, &s.Target, &targetType, &status,
			&s.TotalPosts, &s.SuccessfulPosts, &s.FailedPosts,
			&s.StartTime, &end, &durationSec, &lastError,
		); err != nil {
			return nil, err
		}
		s.Platform = types.Platform(platform)
		s.TargetType = types.TargetType(targetType)
		s.Status = types.SessionStatus(status)
		if end.Valid {
			t := end.Time
			s.EndTime = &t
		}
		if durationSec.Valid {
			s.Duration = time.Duration(durationSec.Float64 * float64(time.Second))
		}
		s.LastError = lastError.String
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (g *sqlGateway) CountPostsByPlatform(ctx context.Context) (map[types.Platform]int64, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT platform, COUNT(*) FROM posts GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("counting posts: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Platform]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, err
		}
		counts[types.Platform(platform)] = n
	}
	return counts, rows.Err()
}

func (g *sqlGateway) TopAuthors(ctx context.Context, platform types.Platform, limit int) ([]AuthorCount, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT platform, author, COUNT(*) AS n FROM posts`
	var args []interface{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, string(platform))
	}
	query += ` GROUP BY platform, author ORDER BY n DESC LIMIT ?`
	args = append(args, limit)

	rows, err := g.db.QueryContext(ctx, g.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ranking authors: %w", err)
	}
	defer rows.Close()

	var out []AuthorCount
	for rows.Next() {
		var ac AuthorCount
		var p string
		if err := rows.Scan(&p, &ac.Author, &ac.Posts); err != nil {
			return nil, err
		}
		ac.Platform = types.Platform(p)
		out = append(out, ac)
	}
	return out, rows.Err()
}

func (g *sqlGateway) UpsertAnalytics(ctx context.Context, date string, platform types.Platform, name string, value float64) error {
	query := fmt.Sprintf(`INSERT INTO analytics_metrics
		(metric_date, platform, metric_name, metric_value) VALUES (?, ?, ?, ?)%s`,
		g.d.UpsertSuffix(
			[]string{"metric_date", "platform", "metric_name"},
			[]string{"metric_value"}))
	_, err := g.db.ExecContext(ctx, g.d.Rebind(query),
		date, string(platform), name, value)
	if err != nil {
		return fmt.Errorf("upserting metric %s/%s: %w", platform, name, err)
	}
	return nil
}
