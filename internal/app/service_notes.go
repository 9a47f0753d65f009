package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

type CreateNoteInput struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Visibility  string   `json:"visibility"`
	Tags        []string `json:"tags"`
	Notebooks   []int64  `json:"notebooks"`
	Connections []int64  `json:"connections"`
}

type UpdateNoteInput struct {
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	Type        *string   `json:"type"`
	Visibility  *string   `json:"visibility"`
	Tags        *[]string `json:"tags"`
	Notebooks   *[]int64  `json:"notebooks"`
	Connections *[]int64  `json:"connections"`
}

// NoteListQuery carries the optional list filters from query params.
type NoteListQuery struct {
	NotebookID int64
	TagID      int64
	UserID     int64
}

var allowedVisibility = map[string]struct{}{
	rbac.VisibilityPublic:  {},
	rbac.VisibilityPrivate: {},
	rbac.VisibilityShared:  {},
}

var allowedNoteTypes = map[string]struct{}{
	"text":     {},
	"markdown": {},
	"todo":     {},
	"code":     {},
}

func (s *Service) CreateNote(ctx context.Context, session Session, input CreateNoteInput) (map[string]any, error) {
	if decision := rbac.CanCreateNote(session.Roles); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, errValidation("title is required")
	}
	if input.Visibility == "" {
		input.Visibility = rbac.VisibilityPrivate
	}
	if _, ok := allowedVisibility[input.Visibility]; !ok {
		return nil, errValidation("visibility must be public, private, or shared")
	}
	if input.Type == "" {
		input.Type = "text"
	}
	if _, ok := allowedNoteTypes[input.Type]; !ok {
		return nil, errValidation("type must be text, markdown, todo, or code")
	}

	tagIDs, err := s.resolveTags(ctx, input.Tags)
	if err != nil {
		return nil, err
	}
	if err := s.checkNotebooksExist(ctx, input.Notebooks); err != nil {
		return nil, err
	}
	if err := s.checkConnectionsViewable(ctx, session, input.Connections); err != nil {
		return nil, err
	}

	note := store.Note{
		NoteID:     util.NewID("NOTE"),
		OwnerID:    session.UserID,
		Title:      input.Title,
		Content:    input.Content,
		Type:       input.Type,
		Visibility: input.Visibility,
	}
	id, err := s.store.CreateNote(ctx, note, tagIDs, input.Notebooks, input.Connections)
	if err != nil {
		return nil, err
	}
	return s.noteDetail(ctx, id)
}

func (s *Service) GetNote(ctx context.Context, session Session, noteID int64) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	return s.noteDetail(ctx, note.ID)
}

func (s *Service) ListNotes(ctx context.Context, session Session, query NoteListQuery) (map[string]any, error) {
	filter := store.NoteFilter{
		ViewerID:   session.UserID,
		ViewerAll:  rbac.CanSeeAllNotes(session.Roles),
		NotebookID: query.NotebookID,
		TagID:      query.TagID,
		UserID:     query.UserID,
	}
	notes, err := s.store.ListNotes(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteSummary(note))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) UpdateNote(ctx context.Context, session Session, noteID int64, input UpdateNoteInput) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanEditNote(session.Roles, session.UserID, note.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errValidation("title must not be empty")
		}
		note.Title = title
	}
	if input.Content != nil {
		note.Content = *input.Content
	}
	if input.Type != nil {
		if _, ok := allowedNoteTypes[*input.Type]; !ok {
			return nil, errValidation("type must be text, markdown, todo, or code")
		}
		note.Type = *input.Type
	}
	if input.Visibility != nil {
		if _, ok := allowedVisibility[*input.Visibility]; !ok {
			return nil, errValidation("visibility must be public, private, or shared")
		}
		note.Visibility = *input.Visibility
	}

	var tagIDs *[]int64
	if input.Tags != nil {
		resolved, err := s.resolveTags(ctx, *input.Tags)
		if err != nil {
			return nil, err
		}
		tagIDs = &resolved
	}
	if input.Notebooks != nil {
		if err := s.checkNotebooksExist(ctx, *input.Notebooks); err != nil {
			return nil, err
		}
	}
	if input.Connections != nil {
		if err := s.checkConnectionsViewable(ctx, session, *input.Connections); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateNote(ctx, note, tagIDs, input.Notebooks, input.Connections); err != nil {
		return nil, err
	}
	return s.noteDetail(ctx, note.ID)
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteID int64) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanEditNote(session.Roles, session.UserID, note.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	// Capture attachment keys before the cascade removes the rows.
	orphans, _ := s.store.ListAttachments(ctx, store.ParentNote, note.ID)

	if err := s.store.DeleteNote(ctx, note.ID); err != nil {
		return nil, err
	}
	s.removeBlobs(ctx, orphans)
	return map[string]any{"deleted": true, "id": note.ID}, nil
}

// TagNote attaches one tag by name, minting the tag if needed. Repeats
// are no-ops.
func (s *Service) TagNote(ctx context.Context, session Session, noteID int64, name string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanEditNote(session.Roles, session.UserID, note.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	tagIDs, err := s.resolveTags(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	if len(tagIDs) == 0 {
		return nil, errValidation("tag name is required")
	}
	if err := s.store.AddNoteTag(ctx, note.ID, tagIDs[0]); err != nil {
		return nil, err
	}

	tags, err := s.store.NoteTags(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": note.ID, "tags": tagRefViews(tags)}, nil
}

func (s *Service) checkNotebooksExist(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.store.GetNotebook(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errValidation("notebook %d not found", id)
			}
			return err
		}
	}
	return nil
}

func (s *Service) checkConnectionsViewable(ctx context.Context, session Session, ids []int64) error {
	for _, id := range ids {
		connected, err := s.store.GetNote(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errValidation("connected note %d not found", id)
			}
			return err
		}
		if decision := rbac.CanViewNote(session.Roles, session.UserID, connected.OwnerID, connected.Visibility); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	}
	return nil
}

func noteSummary(note store.Note) map[string]any {
	return map[string]any{
		"id":         note.ID,
		"note_id":    note.NoteID,
		"title":      note.Title,
		"content":    note.Content,
		"type":       note.Type,
		"visibility": note.Visibility,
		"owner":      userRefView(note.Owner),
		"created_at": note.CreatedAt,
		"updated_at": note.UpdatedAt,
	}
}

func (s *Service) noteDetail(ctx context.Context, noteID int64) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.NoteTags(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	notebooks, err := s.store.NoteNotebooks(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	connections, err := s.store.NoteConnections(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, store.ParentNote, note.ID)
	if err != nil {
		return nil, err
	}

	view := noteSummary(note)
	view["tags"] = tagRefViews(tags)
	view["notebooks"] = notebookRefViews(notebooks)
	view["connections"] = noteRefViews(connections)
	commentViews := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		commentViews = append(commentViews, commentView(comment))
	}
	view["comments"] = commentViews
	view["attachments"] = attachmentViews(attachments)
	return view, nil
}
