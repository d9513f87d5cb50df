package devserver

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"pamana/notes/internal/model"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository connects and creates the schema when it is missing.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "database ping failed")
	}
	repo := &PostgresRepository{pool: pool}
	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (p *PostgresRepository) Close() {
	p.pool.Close()
}

func (p *PostgresRepository) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			school_id TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			course TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			token_hash TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS subjects (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			is_major BOOLEAN NOT NULL DEFAULT false,
			is_general BOOLEAN NOT NULL DEFAULT false,
			course TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			file TEXT NOT NULL DEFAULT '',
			visibility TEXT NOT NULL,
			subject_id BIGINT REFERENCES subjects(id),
			author TEXT NOT NULL,
			is_approved BOOLEAN NOT NULL DEFAULT false,
			is_rejected BOOLEAN NOT NULL DEFAULT false,
			rejection_reason TEXT NOT NULL DEFAULT '',
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`ALTER TABLE notes ADD COLUMN IF NOT EXISTS deleted_at TIMESTAMPTZ`,
		`CREATE TABLE IF NOT EXISTS note_saves (
			user_id TEXT NOT NULL,
			note_id BIGINT NOT NULL REFERENCES notes(id),
			PRIMARY KEY (user_id, note_id)
		)`,
		`CREATE TABLE IF NOT EXISTS note_likes (
			user_id TEXT NOT NULL,
			note_id BIGINT NOT NULL REFERENCES notes(id),
			PRIMARY KEY (user_id, note_id)
		)`,
		`CREATE TABLE IF NOT EXISTS note_comments (
			id BIGSERIAL PRIMARY KEY,
			note_id BIGINT NOT NULL REFERENCES notes(id),
			parent_id BIGINT REFERENCES note_comments(id) ON DELETE CASCADE,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS wall_comments (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL REFERENCES posts(id),
			parent_id BIGINT REFERENCES wall_comments(id),
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS post_likes (
			user_id TEXT NOT NULL,
			post_id BIGINT NOT NULL REFERENCES posts(id),
			PRIMARY KEY (user_id, post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS comment_likes (
			user_id TEXT NOT NULL,
			comment_id BIGINT NOT NULL REFERENCES wall_comments(id),
			PRIMARY KEY (user_id, comment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS comment_reports (
			id TEXT PRIMARY KEY,
			comment_id BIGINT NOT NULL REFERENCES wall_comments(id),
			reporter_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range queries {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "failed to init schema")
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *PostgresRepository) CreateUser(ctx context.Context, user User) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, school_id, password_hash, role, course, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (school_id) DO NOTHING
	`, user.ID, user.SchoolID, user.PasswordHash, string(user.Role), user.Course, user.CreatedAt)
	return err
}

func (p *PostgresRepository) getUser(ctx context.Context, where string, arg interface{}) (User, error) {
	var user User
	var role string
	row := p.pool.QueryRow(ctx, `
		SELECT id, school_id, password_hash, role, course, created_at
		FROM users
		WHERE `+where+` = $1
	`, arg)
	if err := row.Scan(&user.ID, &user.SchoolID, &user.PasswordHash, &role, &user.Course, &user.CreatedAt); err != nil {
		return User{}, notFound(err)
	}
	user.Role = model.ParseRole(role)
	return user, nil
}

func (p *PostgresRepository) GetUserBySchoolID(ctx context.Context, schoolID string) (User, error) {
	return p.getUser(ctx, "school_id", schoolID)
}

func (p *PostgresRepository) GetUserByID(ctx context.Context, id string) (User, error) {
	return p.getUser(ctx, "id", id)
}

func (p *PostgresRepository) CreateRefreshSession(ctx context.Context, session RefreshSession) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt)
	return err
}

func (p *PostgresRepository) GetRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error) {
	var s RefreshSession
	row := p.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt); err != nil {
		return RefreshSession{}, notFound(err)
	}
	return s, nil
}

func (p *PostgresRepository) RevokeRefreshSession(ctx context.Context, id string, revokedAt time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1`, id, revokedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) CreateSubject(ctx context.Context, subject model.Subject) (model.Subject, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO subjects (name, is_major, is_general, course)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, subject.Name, subject.IsMajor, subject.IsGeneral, subject.Course).Scan(&subject.ID)
	return subject, err
}

func (p *PostgresRepository) GetSubject(ctx context.Context, id int64) (model.Subject, error) {
	var s model.Subject
	row := p.pool.QueryRow(ctx, `SELECT id, name, is_major, is_general, course FROM subjects WHERE id = $1`, id)
	if err := row.Scan(&s.ID, &s.Name, &s.IsMajor, &s.IsGeneral, &s.Course); err != nil {
		return model.Subject{}, notFound(err)
	}
	return s, nil
}

func (p *PostgresRepository) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, is_major, is_general, course FROM subjects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Subject{}
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.IsMajor, &s.IsGeneral, &s.Course); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// noteColumns selects a note with its subject and like state. viewer is the
// SQL expression holding the viewing user's id.
func noteColumns(viewer string) string {
	return `
	n.id, n.title, n.description, n.file, n.visibility, n.author,
	n.is_approved, n.is_rejected, n.rejection_reason, n.uploaded_at,
	s.id, s.name, s.is_major, s.is_general, s.course,
	(SELECT count(*) FROM note_likes nl WHERE nl.note_id = n.id),
	EXISTS (SELECT 1 FROM note_likes nl WHERE nl.note_id = n.id AND nl.user_id = ` + viewer + `)
`
}

func scanNote(row pgx.Row) (model.Note, error) {
	var n model.Note
	var visibility string
	var subjectID *int64
	var subjectName, subjectCourse *string
	var isMajor, isGeneral *bool
	err := row.Scan(
		&n.ID, &n.Title, &n.Description, &n.File, &visibility, &n.Author,
		&n.IsApproved, &n.IsRejected, &n.RejectionReason, &n.UploadedAt,
		&subjectID, &subjectName, &isMajor, &isGeneral, &subjectCourse,
		&n.LikesCount, &n.Liked,
	)
	if err != nil {
		return model.Note{}, err
	}
	n.Visibility = model.Scope(visibility)
	if subjectID != nil {
		n.Subject = &model.Subject{
			ID:        *subjectID,
			Name:      deref(subjectName),
			IsMajor:   isMajor != nil && *isMajor,
			IsGeneral: isGeneral != nil && *isGeneral,
			Course:    deref(subjectCourse),
		}
	}
	return n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func subjectID(n model.Note) *int64 {
	if n.Subject == nil || n.Subject.ID == 0 {
		return nil
	}
	id := n.Subject.ID
	return &id
}

func (p *PostgresRepository) CreateNote(ctx context.Context, note model.Note) (model.Note, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO notes (title, description, file, visibility, subject_id, author,
			is_approved, is_rejected, rejection_reason, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, note.Title, note.Description, note.File, string(note.Visibility), subjectID(note), note.Author,
		note.IsApproved, note.IsRejected, note.RejectionReason, note.UploadedAt).Scan(&note.ID)
	return note, err
}

func (p *PostgresRepository) GetNote(ctx context.Context, id int64) (model.Note, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+noteColumns("''")+`
		FROM notes n LEFT JOIN subjects s ON s.id = n.subject_id
		WHERE n.id = $1 AND n.deleted_at IS NULL
	`, id)
	n, err := scanNote(row)
	return n, notFound(err)
}

func (p *PostgresRepository) UpdateNote(ctx context.Context, note model.Note) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE notes SET title = $2, description = $3, file = $4, visibility = $5, subject_id = $6,
			is_approved = $7, is_rejected = $8, rejection_reason = $9
		WHERE id = $1 AND deleted_at IS NULL
	`, note.ID, note.Title, note.Description, note.File, string(note.Visibility), subjectID(note),
		note.IsApproved, note.IsRejected, note.RejectionReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNote hides the note everywhere; its rows stay for auditing.
func (p *PostgresRepository) DeleteNote(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE notes SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) queryNotes(ctx context.Context, sql string, args ...interface{}) ([]model.Note, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListNotes filters status in Go; the queue sizes involved are small.
func (p *PostgresRepository) ListNotes(ctx context.Context, query NoteQuery) ([]model.Note, error) {
	notes, err := p.queryNotes(ctx, `
		SELECT `+noteColumns("$4")+`
		FROM notes n LEFT JOIN subjects s ON s.id = n.subject_id
		WHERE n.deleted_at IS NULL
			AND ($1 = '' OR n.author = $1)
			AND ($2 = '' OR s.course = $2)
			AND ($3 = '' OR n.visibility = $3)
		ORDER BY n.id
	`, query.Author, query.Course, string(query.Visibility), query.Viewer)
	if err != nil {
		return nil, err
	}
	out := notes[:0]
	for _, n := range notes {
		if query.matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p *PostgresRepository) ToggleSave(ctx context.Context, userID string, noteID int64) (bool, error) {
	if _, err := p.GetNote(ctx, noteID); err != nil {
		return false, err
	}
	return p.toggle(ctx, "note_saves", "note_id", userID, noteID)
}

func (p *PostgresRepository) ToggleNoteLike(ctx context.Context, userID string, noteID int64) (bool, int, error) {
	if _, err := p.GetNote(ctx, noteID); err != nil {
		return false, 0, err
	}
	liked, err := p.toggle(ctx, "note_likes", "note_id", userID, noteID)
	if err != nil {
		return false, 0, err
	}
	n, err := p.count(ctx, "note_likes", "note_id", noteID)
	return liked, n, err
}

func (p *PostgresRepository) SavedNotes(ctx context.Context, userID string) ([]model.Note, error) {
	return p.queryNotes(ctx, `
		SELECT `+noteColumns("$1")+`
		FROM notes n
		JOIN note_saves ns ON ns.note_id = n.id
		LEFT JOIN subjects s ON s.id = n.subject_id
		WHERE ns.user_id = $1 AND n.is_approved AND n.deleted_at IS NULL
		ORDER BY n.id
	`, userID)
}

// toggle flips a (user, target) membership row and reports whether the row
// exists afterwards.
func (p *PostgresRepository) toggle(ctx context.Context, table, column, userID string, target int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1 AND `+column+` = $2`, userID, target)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}
	if _, err := p.pool.Exec(ctx, `INSERT INTO `+table+` (user_id, `+column+`) VALUES ($1, $2)`, userID, target); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresRepository) count(ctx context.Context, table, column string, target int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM `+table+` WHERE `+column+` = $1`, target).Scan(&n)
	return n, err
}

func (p *PostgresRepository) queryComments(ctx context.Context, sql string, args ...interface{}) ([]model.Comment, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Author.SchoolID, &c.Content, &c.CreatedAt, &c.LikesCount, &c.Liked); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) ListNoteComments(ctx context.Context, noteID int64) ([]model.Comment, error) {
	comments, err := p.queryComments(ctx, `
		SELECT id, note_id, parent_id, author, content, created_at, 0, false
		FROM note_comments
		WHERE note_id = $1
		ORDER BY id
	`, noteID)
	for i := range comments {
		// note comments do not belong to a wall post
		comments[i].PostID = 0
	}
	return comments, err
}

func (p *PostgresRepository) CreateNoteComment(ctx context.Context, noteID int64, comment model.Comment) (model.Comment, error) {
	if _, err := p.GetNote(ctx, noteID); err != nil {
		return model.Comment{}, err
	}
	if comment.ParentID != nil {
		var parentNote int64
		err := p.pool.QueryRow(ctx, `SELECT note_id FROM note_comments WHERE id = $1`, *comment.ParentID).Scan(&parentNote)
		if err != nil {
			return model.Comment{}, notFound(err)
		}
		if parentNote != noteID {
			return model.Comment{}, ErrNotFound
		}
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO note_comments (note_id, parent_id, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, noteID, comment.ParentID, comment.Author.SchoolID, comment.Content, comment.CreatedAt).Scan(&comment.ID)
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (p *PostgresRepository) DeleteNoteComment(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM note_comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) ListPosts(ctx context.Context, viewerID string) ([]model.Post, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT p.id, p.author, p.content, p.created_at,
			(SELECT count(*) FROM post_likes l WHERE l.post_id = p.id),
			EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = $1)
		FROM posts p
		WHERE p.deleted_at IS NULL
		ORDER BY p.id DESC
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Post{}
	for rows.Next() {
		var post model.Post
		if err := rows.Scan(&post.ID, &post.Author.SchoolID, &post.Content, &post.CreatedAt, &post.LikesCount, &post.Liked); err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) CreatePost(ctx context.Context, post model.Post) (model.Post, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO posts (author, content, created_at) VALUES ($1, $2, $3) RETURNING id
	`, post.Author.SchoolID, post.Content, post.CreatedAt).Scan(&post.ID)
	return post, err
}

func (p *PostgresRepository) GetPost(ctx context.Context, id int64) (model.Post, error) {
	var post model.Post
	row := p.pool.QueryRow(ctx, `
		SELECT id, author, content, created_at, (SELECT count(*) FROM post_likes WHERE post_id = $1)
		FROM posts WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err := row.Scan(&post.ID, &post.Author.SchoolID, &post.Content, &post.CreatedAt, &post.LikesCount); err != nil {
		return model.Post{}, notFound(err)
	}
	return post, nil
}

func (p *PostgresRepository) DeletePost(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) ListWallComments(ctx context.Context, viewerID string) ([]model.Comment, error) {
	return p.queryComments(ctx, `
		SELECT c.id, c.post_id, c.parent_id, c.author, c.content, c.created_at,
			(SELECT count(*) FROM comment_likes l WHERE l.comment_id = c.id),
			EXISTS (SELECT 1 FROM comment_likes l WHERE l.comment_id = c.id AND l.user_id = $1)
		FROM wall_comments c
		JOIN posts p ON p.id = c.post_id
		WHERE c.deleted_at IS NULL AND p.deleted_at IS NULL
		ORDER BY c.id
	`, viewerID)
}

func (p *PostgresRepository) CreateWallComment(ctx context.Context, comment model.Comment) (model.Comment, error) {
	if _, err := p.GetPost(ctx, comment.PostID); err != nil {
		return model.Comment{}, err
	}
	if comment.ParentID != nil {
		parent, err := p.GetWallComment(ctx, *comment.ParentID)
		if err != nil {
			return model.Comment{}, err
		}
		if parent.PostID != comment.PostID {
			return model.Comment{}, ErrNotFound
		}
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO wall_comments (post_id, parent_id, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, comment.PostID, comment.ParentID, comment.Author.SchoolID, comment.Content, comment.CreatedAt).Scan(&comment.ID)
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (p *PostgresRepository) GetWallComment(ctx context.Context, id int64) (model.Comment, error) {
	var c model.Comment
	row := p.pool.QueryRow(ctx, `
		SELECT id, post_id, parent_id, author, content, created_at,
			(SELECT count(*) FROM comment_likes WHERE comment_id = $1)
		FROM wall_comments WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Author.SchoolID, &c.Content, &c.CreatedAt, &c.LikesCount); err != nil {
		return model.Comment{}, notFound(err)
	}
	return c, nil
}

func (p *PostgresRepository) DeleteWallComment(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE wall_comments SET deleted_at = now()
		WHERE (id = $1 OR parent_id = $1) AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) TogglePostLike(ctx context.Context, userID string, postID int64) (bool, int, error) {
	if _, err := p.GetPost(ctx, postID); err != nil {
		return false, 0, err
	}
	liked, err := p.toggle(ctx, "post_likes", "post_id", userID, postID)
	if err != nil {
		return false, 0, err
	}
	n, err := p.count(ctx, "post_likes", "post_id", postID)
	return liked, n, err
}

func (p *PostgresRepository) ToggleCommentLike(ctx context.Context, userID string, commentID int64) (bool, int, error) {
	if _, err := p.GetWallComment(ctx, commentID); err != nil {
		return false, 0, err
	}
	liked, err := p.toggle(ctx, "comment_likes", "comment_id", userID, commentID)
	if err != nil {
		return false, 0, err
	}
	n, err := p.count(ctx, "comment_likes", "comment_id", commentID)
	return liked, n, err
}

func (p *PostgresRepository) CreateReport(ctx context.Context, report Report) error {
	if _, err := p.GetWallComment(ctx, report.CommentID); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO comment_reports (id, comment_id, reporter_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, report.ID, report.CommentID, report.ReporterID, string(report.Reason), report.CreatedAt)
	return err
}
