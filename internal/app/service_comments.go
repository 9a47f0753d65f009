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

type CreateCommentInput struct {
	NoteID int64  `json:"note_id"`
	Text   string `json:"text"`
}

// CreateComment requires view access to the note being commented on.
func (s *Service) CreateComment(ctx context.Context, session Session, input CreateCommentInput) (map[string]any, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.Text == "" {
		return nil, errValidation("text is required")
	}
	if input.NoteID == 0 {
		return nil, errValidation("note_id is required")
	}

	note, err := s.store.GetNote(ctx, input.NoteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errValidation("note %d not found", input.NoteID)
		}
		return nil, err
	}
	if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	comment := store.Comment{
		CommentID: util.NewID("COMMENT"),
		NoteID:    note.ID,
		AuthorID:  session.UserID,
		Text:      input.Text,
	}
	id, err := s.store.CreateComment(ctx, comment)
	if err != nil {
		return nil, err
	}
	created, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	return commentView(created), nil
}

func (s *Service) GetComment(ctx context.Context, session Session, commentID int64) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	note, err := s.store.GetNote(ctx, comment.NoteID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	return commentView(comment), nil
}

// ListComments lists a note's comments. Without a note filter only users
// who can see every note may list globally.
func (s *Service) ListComments(ctx context.Context, session Session, noteID int64) (map[string]any, error) {
	if noteID != 0 {
		note, err := s.store.GetNote(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
			return nil, errForbidden(decision.Reason)
		}
	} else if !rbac.CanSeeAllNotes(session.Roles) {
		return nil, errValidation("note_id is required")
	}

	comments, err := s.store.ListComments(ctx, noteID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentView(comment))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) UpdateComment(ctx context.Context, session Session, commentID int64, text string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageComment(session.Roles, session.UserID, comment.AuthorID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errValidation("text must not be empty")
	}
	if err := s.store.UpdateComment(ctx, comment.ID, text); err != nil {
		return nil, err
	}
	updated, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return commentView(updated), nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID int64) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageComment(session.Roles, session.UserID, comment.AuthorID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	orphans, _ := s.store.ListAttachments(ctx, store.ParentComment, comment.ID)

	if err := s.store.DeleteComment(ctx, comment.ID); err != nil {
		return nil, err
	}
	s.removeBlobs(ctx, orphans)
	return map[string]any{"deleted": true, "id": comment.ID}, nil
}

func commentView(comment store.Comment) map[string]any {
	return map[string]any{
		"id":         comment.ID,
		"comment_id": comment.CommentID,
		"note_id":    comment.NoteID,
		"text":       comment.Text,
		"author":     userRefView(comment.Author),
		"created_at": comment.CreatedAt,
	}
}
