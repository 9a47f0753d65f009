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

type CreateNotebookInput struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// UpdateNotebookInput moves or renames a notebook. A parent_id of 0
// moves the notebook to the root.
type UpdateNotebookInput struct {
	Name     *string `json:"name"`
	ParentID *int64  `json:"parent_id"`
}

func (s *Service) CreateNotebook(ctx context.Context, session Session, input CreateNotebookInput) (map[string]any, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errValidation("name is required")
	}
	if input.ParentID != nil {
		if _, err := s.store.GetNotebook(ctx, *input.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errValidation("parent notebook %d not found", *input.ParentID)
			}
			return nil, err
		}
	}

	notebook := store.Notebook{
		NotebookID: util.NewID("NOTEBOOK"),
		Name:       input.Name,
		OwnerID:    session.UserID,
		ParentID:   input.ParentID,
	}
	id, err := s.store.CreateNotebook(ctx, notebook)
	if err != nil {
		return nil, err
	}
	return s.notebookDetail(ctx, id)
}

func (s *Service) GetNotebook(ctx context.Context, session Session, notebookID int64) (map[string]any, error) {
	notebook, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	return s.notebookDetail(ctx, notebook.ID)
}

func (s *Service) ListNotebooks(ctx context.Context, session Session) (map[string]any, error) {
	notebooks, err := s.store.ListNotebooks(ctx, session.UserID, rbac.CanSeeAllNotes(session.Roles))
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notebooks))
	for _, notebook := range notebooks {
		items = append(items, notebookSummary(notebook))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) UpdateNotebook(ctx context.Context, session Session, notebookID int64, input UpdateNotebookInput) (map[string]any, error) {
	notebook, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageNotebook(session.Roles, session.UserID, notebook.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name must not be empty")
		}
		notebook.Name = name
	}
	if input.ParentID != nil {
		if *input.ParentID == 0 {
			notebook.ParentID = nil
		} else {
			if err := s.checkNotebookParent(ctx, notebook.ID, *input.ParentID); err != nil {
				return nil, err
			}
			parentID := *input.ParentID
			notebook.ParentID = &parentID
		}
	}

	if err := s.store.UpdateNotebook(ctx, notebook); err != nil {
		return nil, err
	}
	return s.notebookDetail(ctx, notebook.ID)
}

func (s *Service) DeleteNotebook(ctx context.Context, session Session, notebookID int64) (map[string]any, error) {
	notebook, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageNotebook(session.Roles, session.UserID, notebook.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	if err := s.store.DeleteNotebook(ctx, notebook.ID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": notebook.ID}, nil
}

// AddNotebookNote files a note into a notebook. Repeats are no-ops.
func (s *Service) AddNotebookNote(ctx context.Context, session Session, notebookID, noteID int64) (map[string]any, error) {
	notebook, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageNotebook(session.Roles, session.UserID, notebook.OwnerID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errValidation("note %d not found", noteID)
		}
		return nil, err
	}
	if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	if err := s.store.AddNotebookNote(ctx, notebook.ID, note.ID); err != nil {
		return nil, err
	}
	notes, err := s.store.NotebookNotes(ctx, notebook.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": notebook.ID, "notes": noteRefViews(notes)}, nil
}

// checkNotebookParent rejects a parent that does not exist or that would
// close a cycle. The walk follows parent pointers from the candidate up
// to the root; reaching the notebook being moved means the candidate is
// one of its descendants.
func (s *Service) checkNotebookParent(ctx context.Context, notebookID, parentID int64) error {
	if parentID == notebookID {
		return errValidation("a notebook cannot be its own parent")
	}
	const maxDepth = 100
	current := parentID
	for i := 0; i < maxDepth; i++ {
		node, err := s.store.GetNotebook(ctx, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errValidation("parent notebook %d not found", current)
			}
			return err
		}
		if node.ID == notebookID {
			return errValidation("moving the notebook here would create a cycle")
		}
		if node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
	return errValidation("notebook nesting too deep")
}

func notebookSummary(notebook store.Notebook) map[string]any {
	view := map[string]any{
		"id":          notebook.ID,
		"notebook_id": notebook.NotebookID,
		"name":        notebook.Name,
		"owner":       userRefView(notebook.Owner),
		"parent_id":   nil,
		"created_at":  notebook.CreatedAt,
		"updated_at":  notebook.UpdatedAt,
	}
	if notebook.ParentID != nil {
		view["parent_id"] = *notebook.ParentID
	}
	return view
}

func (s *Service) notebookDetail(ctx context.Context, notebookID int64) (map[string]any, error) {
	notebook, err := s.store.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.NotebookNotes(ctx, notebook.ID)
	if err != nil {
		return nil, err
	}
	view := notebookSummary(notebook)
	view["notes"] = noteRefViews(notes)
	return view, nil
}
