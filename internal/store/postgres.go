package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). Callers map it to a conflict response.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UniqueConstraint returns the name of the unique constraint err
// violated, or "" when err is not a unique violation. Lets callers with
// several unique columns on one table tell which field collided.
func UniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

func marshalStrings(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return raw
}

func unmarshalStrings(raw []byte) []string {
	var values []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &values)
	}
	if values == nil {
		values = []string{}
	}
	return values
}

// ----------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (user_id, user_name, first_name, last_name, email, password_hash, phone, institution, roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, user.UserID, user.Username, user.FirstName, user.LastName, user.Email,
		user.PasswordHash, marshalStrings(user.Phone), user.Institution, marshalStrings(user.Roles)).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, err
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

const userColumns = `id, user_id, user_name, first_name, last_name, email, password_hash, phone, institution, roles, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	var phone, roles []byte
	err := row.Scan(&user.ID, &user.UserID, &user.Username, &user.FirstName, &user.LastName,
		&user.Email, &user.PasswordHash, &phone, &user.Institution, &roles, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	user.Phone = unmarshalStrings(phone)
	user.Roles = unmarshalStrings(roles)
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_name=$1`, username))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		var phone, roles []byte
		if err := rows.Scan(&user.ID, &user.UserID, &user.Username, &user.FirstName, &user.LastName,
			&user.Email, &user.PasswordHash, &phone, &user.Institution, &roles, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Phone = unmarshalStrings(phone)
		user.Roles = unmarshalStrings(roles)
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// ----------------------------------------------------------------------------
// Notes

const noteColumns = `
	n.id, n.note_id, n.owner_id, n.title, n.content, n.type, n.visibility, n.created_at, n.updated_at,
	u.id, u.user_name, u.first_name, u.last_name`

func scanNote(scanner interface{ Scan(...any) error }) (Note, error) {
	var note Note
	err := scanner.Scan(&note.ID, &note.NoteID, &note.OwnerID, &note.Title, &note.Content,
		&note.Type, &note.Visibility, &note.CreatedAt, &note.UpdatedAt,
		&note.Owner.ID, &note.Owner.Username, &note.Owner.FirstName, &note.Owner.LastName)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// CreateNote inserts the note and its initial tag, notebook, and
// connected-note associations in one transaction; a failure part-way
// through rolls everything back.
func (s *PostgresStore) CreateNote(ctx context.Context, note Note, tagIDs, notebookIDs, connectedIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO notes (note_id, owner_id, title, content, type, visibility)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, note.NoteID, note.OwnerID, note.Title, note.Content, note.Type, note.Visibility).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}

	if err := replaceLinks(ctx, tx, "note_tags", "note_id", "tag_id", id, tagIDs); err != nil {
		return 0, err
	}
	if err := replaceLinks(ctx, tx, "notebook_notes", "note_id", "notebook_id", id, notebookIDs); err != nil {
		return 0, err
	}
	if err := replaceLinks(ctx, tx, "note_connections", "note_id", "connected_note_id", id, connectedIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create note: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID int64) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes n JOIN users u ON u.id = n.owner_id
		WHERE n.id=$1
	`, noteID))
}

func (s *PostgresStore) ListNotes(ctx context.Context, filter NoteFilter) ([]Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM notes n JOIN users u ON u.id = n.owner_id
		WHERE 1=1`
	args := []any{}

	if !filter.ViewerAll {
		args = append(args, filter.ViewerID)
		query += fmt.Sprintf(` AND (n.owner_id=$%d OR n.visibility IN ('public','shared'))`, len(args))
	}
	if filter.NotebookID != 0 {
		args = append(args, filter.NotebookID)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM notebook_notes nn WHERE nn.note_id=n.id AND nn.notebook_id=$%d)`, len(args))
	}
	if filter.TagID != 0 {
		args = append(args, filter.TagID)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM note_tags nt WHERE nt.note_id=n.id AND nt.tag_id=$%d)`, len(args))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(` AND n.owner_id=$%d`, len(args))
	}
	query += ` ORDER BY n.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// UpdateNote writes the note row and, when the id slices are non-nil,
// fully replaces the corresponding association sets. Runs in one
// transaction.
func (s *PostgresStore) UpdateNote(ctx context.Context, note Note, tagIDs, notebookIDs, connectedIDs *[]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET title=$2, content=$3, type=$4, visibility=$5, updated_at=NOW()
		WHERE id=$1
	`, note.ID, note.Title, note.Content, note.Type, note.Visibility)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}

	if tagIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id=$1`, note.ID); err != nil {
			return fmt.Errorf("clear note tags: %w", err)
		}
		if err := replaceLinks(ctx, tx, "note_tags", "note_id", "tag_id", note.ID, *tagIDs); err != nil {
			return err
		}
	}
	if notebookIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notebook_notes WHERE note_id=$1`, note.ID); err != nil {
			return fmt.Errorf("clear note notebooks: %w", err)
		}
		if err := replaceLinks(ctx, tx, "notebook_notes", "note_id", "notebook_id", note.ID, *notebookIDs); err != nil {
			return err
		}
	}
	if connectedIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_connections WHERE note_id=$1`, note.ID); err != nil {
			return fmt.Errorf("clear note connections: %w", err)
		}
		if err := replaceLinks(ctx, tx, "note_connections", "note_id", "connected_note_id", note.ID, *connectedIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update note: %w", err)
	}
	return nil
}

// DeleteNote removes the note's comments (and their attachments), its own
// attachments, and every association row before the note itself, all in
// one transaction.
func (s *PostgresStore) DeleteNote(ctx context.Context, noteID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		desc  string
		query string
	}{
		{"delete comment attachments", `DELETE FROM attachments WHERE parent_type='Comment' AND parent_id IN (SELECT id FROM comments WHERE note_id=$1)`},
		{"delete comments", `DELETE FROM comments WHERE note_id=$1`},
		{"delete note attachments", `DELETE FROM attachments WHERE parent_type='Note' AND parent_id=$1`},
		{"detach tags", `DELETE FROM note_tags WHERE note_id=$1`},
		{"detach notebooks", `DELETE FROM notebook_notes WHERE note_id=$1`},
		{"detach connections", `DELETE FROM note_connections WHERE note_id=$1 OR connected_note_id=$1`},
		{"delete note", `DELETE FROM notes WHERE id=$1`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, noteID); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete note: %w", err)
	}
	return nil
}

// AddNoteTag is additive and idempotent.
func (s *PostgresStore) AddNoteTag(ctx context.Context, noteID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_tags (note_id, tag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, noteID, tagID)
	if err != nil {
		return fmt.Errorf("add note tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) NoteTags(ctx context.Context, noteID int64) ([]TagRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id=$1
		ORDER BY t.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("note tags: %w", err)
	}
	defer rows.Close()

	items := make([]TagRef, 0)
	for rows.Next() {
		var item TagRef
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) NoteNotebooks(ctx context.Context, noteID int64) ([]NotebookRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.notebook_id, b.name FROM notebooks b
		JOIN notebook_notes nn ON nn.notebook_id = b.id
		WHERE nn.note_id=$1
		ORDER BY b.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("note notebooks: %w", err)
	}
	defer rows.Close()

	items := make([]NotebookRef, 0)
	for rows.Next() {
		var item NotebookRef
		if err := rows.Scan(&item.ID, &item.NotebookID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan note notebook: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) NoteConnections(ctx context.Context, noteID int64) ([]NoteRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.note_id, c.title FROM notes c
		JOIN note_connections nc ON nc.connected_note_id = c.id
		WHERE nc.note_id=$1
		ORDER BY c.title ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("note connections: %w", err)
	}
	defer rows.Close()

	items := make([]NoteRef, 0)
	for rows.Next() {
		var item NoteRef
		if err := rows.Scan(&item.ID, &item.NoteID, &item.Title); err != nil {
			return nil, fmt.Errorf("scan note connection: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ----------------------------------------------------------------------------
// Notebooks

const notebookColumns = `
	b.id, b.notebook_id, b.name, b.owner_id, b.parent_id, b.created_at, b.updated_at,
	u.id, u.user_name, u.first_name, u.last_name`

func scanNotebook(scanner interface{ Scan(...any) error }) (Notebook, error) {
	var item Notebook
	err := scanner.Scan(&item.ID, &item.NotebookID, &item.Name, &item.OwnerID, &item.ParentID,
		&item.CreatedAt, &item.UpdatedAt,
		&item.Owner.ID, &item.Owner.Username, &item.Owner.FirstName, &item.Owner.LastName)
	if err != nil {
		return Notebook{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateNotebook(ctx context.Context, notebook Notebook) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notebooks (notebook_id, name, owner_id, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, notebook.NotebookID, notebook.Name, notebook.OwnerID, notebook.ParentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert notebook: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetNotebook(ctx context.Context, notebookID int64) (Notebook, error) {
	return scanNotebook(s.db.QueryRowContext(ctx, `
		SELECT `+notebookColumns+`
		FROM notebooks b JOIN users u ON u.id = b.owner_id
		WHERE b.id=$1
	`, notebookID))
}

func (s *PostgresStore) ListNotebooks(ctx context.Context, viewerID int64, viewerAll bool) ([]Notebook, error) {
	query := `
		SELECT ` + notebookColumns + `
		FROM notebooks b JOIN users u ON u.id = b.owner_id`
	args := []any{}
	if !viewerAll {
		// Owned notebooks plus notebooks reachable through group membership.
		args = append(args, viewerID)
		query += `
		WHERE b.owner_id=$1 OR EXISTS (
			SELECT 1 FROM group_notebooks gn
			JOIN group_members gm ON gm.group_id = gn.group_id
			WHERE gn.notebook_id = b.id AND gm.user_id = $1
		)`
	}
	query += ` ORDER BY b.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	items := make([]Notebook, 0)
	for rows.Next() {
		item, err := scanNotebook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notebook: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateNotebook(ctx context.Context, notebook Notebook) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notebooks SET name=$2, parent_id=$3, updated_at=NOW()
		WHERE id=$1
	`, notebook.ID, notebook.Name, notebook.ParentID)
	if err != nil {
		return fmt.Errorf("update notebook: %w", err)
	}
	return nil
}

// DeleteNotebook detaches notes and group links, reparents child
// notebooks to the root, then removes the notebook. Notes are never
// deleted here.
func (s *PostgresStore) DeleteNotebook(ctx context.Context, notebookID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete notebook: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		desc  string
		query string
	}{
		{"detach notes", `DELETE FROM notebook_notes WHERE notebook_id=$1`},
		{"detach groups", `DELETE FROM group_notebooks WHERE notebook_id=$1`},
		{"reparent children", `UPDATE notebooks SET parent_id=NULL WHERE parent_id=$1`},
		{"delete notebook", `DELETE FROM notebooks WHERE id=$1`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, notebookID); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete notebook: %w", err)
	}
	return nil
}

// AddNotebookNote is additive and idempotent.
func (s *PostgresStore) AddNotebookNote(ctx context.Context, notebookID, noteID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notebook_notes (notebook_id, note_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, notebookID, noteID)
	if err != nil {
		return fmt.Errorf("add notebook note: %w", err)
	}
	return nil
}

func (s *PostgresStore) NotebookNotes(ctx context.Context, notebookID int64) ([]NoteRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.note_id, n.title FROM notes n
		JOIN notebook_notes nn ON nn.note_id = n.id
		WHERE nn.notebook_id=$1
		ORDER BY n.created_at DESC
	`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("notebook notes: %w", err)
	}
	defer rows.Close()

	items := make([]NoteRef, 0)
	for rows.Next() {
		var item NoteRef
		if err := rows.Scan(&item.ID, &item.NoteID, &item.Title); err != nil {
			return nil, fmt.Errorf("scan notebook note: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ----------------------------------------------------------------------------
// Tags

func (s *PostgresStore) CreateTag(ctx context.Context, tag Tag) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (tag_id, name) VALUES ($1, $2)
		RETURNING id
	`, tag.TagID, tag.Name).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, err
		}
		return 0, fmt.Errorf("insert tag: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTag(ctx context.Context, tagID int64) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, tag_id, name, created_at FROM tags WHERE id=$1`, tagID).
		Scan(&tag.ID, &tag.TagID, &tag.Name, &tag.CreatedAt)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

// GetTagByName looks up a tag by its normalized name.
func (s *PostgresStore) GetTagByName(ctx context.Context, name string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, tag_id, name, created_at FROM tags WHERE name=$1`, name).
		Scan(&tag.ID, &tag.TagID, &tag.Name, &tag.CreatedAt)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tag_id, name, created_at FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.TagID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, tag)
	}
	return items, rows.Err()
}

// DeleteTag detaches the tag from all notes before removing it.
func (s *PostgresStore) DeleteTag(ctx context.Context, tagID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tag: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE tag_id=$1`, tagID); err != nil {
		return fmt.Errorf("detach tag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id=$1`, tagID); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tag: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Comments

const commentColumns = `
	c.id, c.comment_id, c.note_id, c.author_id, c.text, c.created_at,
	u.id, u.user_name, u.first_name, u.last_name`

func scanComment(scanner interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	err := scanner.Scan(&item.ID, &item.CommentID, &item.NoteID, &item.AuthorID, &item.Text, &item.CreatedAt,
		&item.Author.ID, &item.Author.Username, &item.Author.FirstName, &item.Author.LastName)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, comment Comment) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (comment_id, note_id, author_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, comment.CommentID, comment.NoteID, comment.AuthorID, comment.Text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID int64) (Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, commentID))
}

// ListComments returns comments newest-first; noteID of zero lists all.
func (s *PostgresStore) ListComments(ctx context.Context, noteID int64) ([]Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments c JOIN users u ON u.id = c.author_id`
	args := []any{}
	if noteID != 0 {
		args = append(args, noteID)
		query += ` WHERE c.note_id=$1`
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID int64, text string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET text=$2 WHERE id=$1`, commentID, text)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// DeleteComment removes the comment's attachments first.
func (s *PostgresStore) DeleteComment(ctx context.Context, commentID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE parent_type='Comment' AND parent_id=$1`, commentID); err != nil {
		return fmt.Errorf("delete comment attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete comment: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Groups

const groupColumns = `
	g.id, g.group_id, g.name, g.lead_editor_id, g.created_at, g.updated_at,
	u.id, u.user_name, u.first_name, u.last_name`

func scanGroup(scanner interface{ Scan(...any) error }) (Group, error) {
	var item Group
	err := scanner.Scan(&item.ID, &item.GroupID, &item.Name, &item.LeadEditorID, &item.CreatedAt, &item.UpdatedAt,
		&item.LeadEditor.ID, &item.LeadEditor.Username, &item.LeadEditor.FirstName, &item.LeadEditor.LastName)
	if err != nil {
		return Group{}, err
	}
	return item, nil
}

// CreateGroup inserts the group and its initial member and notebook sets
// in one transaction.
func (s *PostgresStore) CreateGroup(ctx context.Context, group Group, memberIDs, notebookIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create group: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (group_id, name, lead_editor_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, group.GroupID, group.Name, group.LeadEditorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert group: %w", err)
	}

	if err := replaceLinks(ctx, tx, "group_members", "group_id", "user_id", id, memberIDs); err != nil {
		return 0, err
	}
	if err := replaceLinks(ctx, tx, "group_notebooks", "group_id", "notebook_id", id, notebookIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create group: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID int64) (Group, error) {
	return scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+`
		FROM groups g JOIN users u ON u.id = g.lead_editor_id
		WHERE g.id=$1
	`, groupID))
}

// ListGroups restricts to groups the viewer leads or belongs to, unless
// the viewer sees all. The member-or-lead filter runs in SQL.
func (s *PostgresStore) ListGroups(ctx context.Context, filter GroupFilter) ([]Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups g JOIN users u ON u.id = g.lead_editor_id`
	args := []any{}
	if !filter.ViewerAll {
		args = append(args, filter.ViewerID)
		query += `
		WHERE g.lead_editor_id=$1 OR EXISTS (
			SELECT 1 FROM group_members gm WHERE gm.group_id = g.id AND gm.user_id = $1
		)`
	}
	query += ` ORDER BY g.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		item, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateGroup writes the group row and, when the id slices are non-nil,
// fully replaces the member and accessible-notebook sets.
func (s *PostgresStore) UpdateGroup(ctx context.Context, group Group, memberIDs, notebookIDs *[]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update group: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `UPDATE groups SET name=$2, updated_at=NOW() WHERE id=$1`, group.ID, group.Name)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}

	if memberIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1`, group.ID); err != nil {
			return fmt.Errorf("clear group members: %w", err)
		}
		if err := replaceLinks(ctx, tx, "group_members", "group_id", "user_id", group.ID, *memberIDs); err != nil {
			return err
		}
	}
	if notebookIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_notebooks WHERE group_id=$1`, group.ID); err != nil {
			return fmt.Errorf("clear group notebooks: %w", err)
		}
		if err := replaceLinks(ctx, tx, "group_notebooks", "group_id", "notebook_id", group.ID, *notebookIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update group: %w", err)
	}
	return nil
}

// DeleteGroup removes attachments first, then detaches members and
// notebooks, then the group.
func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete group: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		desc  string
		query string
	}{
		{"delete group attachments", `DELETE FROM attachments WHERE parent_type='Group' AND parent_id=$1`},
		{"detach members", `DELETE FROM group_members WHERE group_id=$1`},
		{"detach notebooks", `DELETE FROM group_notebooks WHERE group_id=$1`},
		{"delete group", `DELETE FROM groups WHERE id=$1`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, groupID); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete group: %w", err)
	}
	return nil
}

// AddGroupMember is additive and idempotent.
func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GroupMembers(ctx context.Context, groupID int64) ([]UserRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.user_name, u.first_name, u.last_name FROM users u
		JOIN group_members gm ON gm.user_id = u.id
		WHERE gm.group_id=$1
		ORDER BY u.user_name ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	defer rows.Close()

	items := make([]UserRef, 0)
	for rows.Next() {
		var item UserRef
		if err := rows.Scan(&item.ID, &item.Username, &item.FirstName, &item.LastName); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GroupNotebooks(ctx context.Context, groupID int64) ([]NotebookRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.notebook_id, b.name FROM notebooks b
		JOIN group_notebooks gn ON gn.notebook_id = b.id
		WHERE gn.group_id=$1
		ORDER BY b.name ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("group notebooks: %w", err)
	}
	defer rows.Close()

	items := make([]NotebookRef, 0)
	for rows.Next() {
		var item NotebookRef
		if err := rows.Scan(&item.ID, &item.NotebookID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan group notebook: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ----------------------------------------------------------------------------
// Attachments

func (s *PostgresStore) CreateAttachment(ctx context.Context, attachment Attachment) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (attachment_id, file_name, file_type, url, file_size, parent_type, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, attachment.AttachmentID, attachment.FileName, attachment.FileType, attachment.URL,
		attachment.FileSize, string(attachment.ParentType), attachment.ParentID).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, err
		}
		return 0, fmt.Errorf("insert attachment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID int64) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, attachment_id, file_name, file_type, url, file_size, parent_type, parent_id, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.AttachmentID, &item.FileName, &item.FileType, &item.URL,
		&item.FileSize, &item.ParentType, &item.ParentID, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

// ListAttachments always filters by parent type and parent id together;
// a polymorphic id is meaningless without its type tag.
func (s *PostgresStore) ListAttachments(ctx context.Context, parentType ParentType, parentID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attachment_id, file_name, file_type, url, file_size, parent_type, parent_id, created_at
		FROM attachments
		WHERE parent_type=$1 AND parent_id=$2
		ORDER BY created_at DESC
	`, string(parentType), parentID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.AttachmentID, &item.FileName, &item.FileType, &item.URL,
			&item.FileSize, &item.ParentType, &item.ParentID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// parentTables maps each attachment parent kind to the table holding it.
// New parent kinds are added here and nowhere else.
var parentTables = map[ParentType]string{
	ParentNote:    "notes",
	ParentComment: "comments",
	ParentGroup:   "groups",
}

// ParentExists type-dispatches the existence check for an attachment's
// polymorphic parent.
func (s *PostgresStore) ParentExists(ctx context.Context, parentType ParentType, parentID int64) (bool, error) {
	table, ok := parentTables[parentType]
	if !ok {
		return false, fmt.Errorf("unknown parent type: %s", parentType)
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, parentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s parent: %w", parentType, err)
	}
	return exists, nil
}

// ----------------------------------------------------------------------------
// Refresh sessions and access-token revocation (Postgres fallback when
// Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the owning user id for a live, unrevoked
// refresh token.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ----------------------------------------------------------------------------

// replaceLinks inserts join rows for the given ids. The composite primary
// key on each join table makes repeated ids a no-op.
func replaceLinks(ctx context.Context, tx *sql.Tx, table, ownerCol, otherCol string, ownerID int64, ids []int64) error {
	for _, otherID := range ids {
		query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, ownerCol, otherCol)
		if _, err := tx.ExecContext(ctx, query, ownerID, otherID); err != nil {
			return fmt.Errorf("link %s: %w", table, err)
		}
	}
	return nil
}
