package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

type CreateAttachmentInput struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
	FileType     string `json:"file_type"`
	URL          string `json:"url"`
	FileSize     int64  `json:"file_size"`
	ParentType   string `json:"parent_type"`
	ParentID     int64  `json:"parent_id"`
}

// UploadAttachmentInput carries a multipart upload destined for object
// storage.
type UploadAttachmentInput struct {
	ParentType  string
	ParentID    int64
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CreateAttachment links attachment metadata to a Note, Comment, or
// Group. Linking the same attachment id to the same parent twice is a
// conflict.
func (s *Service) CreateAttachment(ctx context.Context, session Session, input CreateAttachmentInput) (map[string]any, error) {
	input.FileName = strings.TrimSpace(input.FileName)
	if input.FileName == "" {
		return nil, errValidation("file_name is required")
	}

	parentType, err := s.checkAttachmentParent(ctx, input.ParentType, input.ParentID)
	if err != nil {
		return nil, err
	}
	if err := s.attachmentManageAuthz(ctx, session, parentType, input.ParentID); err != nil {
		return nil, err
	}

	if input.AttachmentID == "" {
		input.AttachmentID = util.NewID("ATTACH")
	}
	attachment := store.Attachment{
		AttachmentID: input.AttachmentID,
		FileName:     input.FileName,
		FileType:     input.FileType,
		URL:          input.URL,
		FileSize:     input.FileSize,
		ParentType:   parentType,
		ParentID:     input.ParentID,
	}
	id, err := s.store.CreateAttachment(ctx, attachment)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errConflict("attachment %s is already linked to this %s", input.AttachmentID, strings.ToLower(input.ParentType))
		}
		return nil, err
	}
	created, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	return attachmentView(created), nil
}

// UploadAttachment stores the payload in object storage and records the
// metadata row pointing at it.
func (s *Service) UploadAttachment(ctx context.Context, session Session, input UploadAttachmentInput) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage is not configured", nil)
	}

	input.FileName = strings.TrimSpace(input.FileName)
	if input.FileName == "" {
		return nil, errValidation("file name is required")
	}
	parentType, err := s.checkAttachmentParent(ctx, input.ParentType, input.ParentID)
	if err != nil {
		return nil, err
	}
	if err := s.attachmentManageAuthz(ctx, session, parentType, input.ParentID); err != nil {
		return nil, err
	}

	attachmentID := util.NewID("ATTACH")
	url, err := s.blobs.Put(ctx, blobKey(attachmentID, input.FileName), input.ContentType, input.Size, input.Body)
	if err != nil {
		return nil, fmt.Errorf("store attachment payload: %w", err)
	}

	id, err := s.store.CreateAttachment(ctx, store.Attachment{
		AttachmentID: attachmentID,
		FileName:     input.FileName,
		FileType:     input.ContentType,
		URL:          url,
		FileSize:     input.Size,
		ParentType:   parentType,
		ParentID:     input.ParentID,
	})
	if err != nil {
		// The metadata row failed; do not leave the payload behind.
		if removeErr := s.blobs.Remove(ctx, blobKey(attachmentID, input.FileName)); removeErr != nil {
			log.Printf("orphaned attachment payload %s: %v", attachmentID, removeErr)
		}
		return nil, err
	}
	created, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	return attachmentView(created), nil
}

// ListAttachments requires both halves of the polymorphic parent key;
// a parent id alone is ambiguous across parent kinds.
func (s *Service) ListAttachments(ctx context.Context, session Session, parentTypeRaw string, parentID int64) (map[string]any, error) {
	if parentTypeRaw == "" || parentID == 0 {
		return nil, errValidation("parent_type and parent_id are both required")
	}
	parentType, err := s.checkAttachmentParent(ctx, parentTypeRaw, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.attachmentViewAuthz(ctx, session, parentType, parentID); err != nil {
		return nil, err
	}

	attachments, err := s.store.ListAttachments(ctx, parentType, parentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(attachments), "items": attachmentViews(attachments)}, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID int64) (map[string]any, error) {
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if err := s.attachmentManageAuthz(ctx, session, attachment.ParentType, attachment.ParentID); err != nil {
		return nil, err
	}

	if err := s.store.DeleteAttachment(ctx, attachment.ID); err != nil {
		return nil, err
	}
	s.removeBlobs(ctx, []store.Attachment{attachment})
	return map[string]any{"deleted": true, "id": attachment.ID}, nil
}

// checkAttachmentParent validates the type tag and that the referenced
// parent row exists.
func (s *Service) checkAttachmentParent(ctx context.Context, parentTypeRaw string, parentID int64) (store.ParentType, error) {
	if !store.ValidParentType(parentTypeRaw) {
		return "", errValidation("parent_type must be Note, Comment, or Group")
	}
	if parentID == 0 {
		return "", errValidation("parent_id is required")
	}
	parentType := store.ParentType(parentTypeRaw)
	exists, err := s.store.ParentExists(ctx, parentType, parentID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errValidation("%s %d not found", strings.ToLower(parentTypeRaw), parentID)
	}
	return parentType, nil
}

// attachmentManageAuthz applies the parent's own modify policy to the
// attachment.
func (s *Service) attachmentManageAuthz(ctx context.Context, session Session, parentType store.ParentType, parentID int64) error {
	switch parentType {
	case store.ParentNote:
		note, err := s.store.GetNote(ctx, parentID)
		if err != nil {
			return err
		}
		if decision := rbac.CanEditNote(session.Roles, session.UserID, note.OwnerID); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	case store.ParentComment:
		comment, err := s.store.GetComment(ctx, parentID)
		if err != nil {
			return err
		}
		if decision := rbac.CanManageComment(session.Roles, session.UserID, comment.AuthorID); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	case store.ParentGroup:
		group, err := s.store.GetGroup(ctx, parentID)
		if err != nil {
			return err
		}
		if decision := rbac.CanManageGroup(session.Roles, session.UserID, group.LeadEditorID); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	default:
		return errValidation("parent_type must be Note, Comment, or Group")
	}
	return nil
}

// attachmentViewAuthz applies the parent's read policy.
func (s *Service) attachmentViewAuthz(ctx context.Context, session Session, parentType store.ParentType, parentID int64) error {
	switch parentType {
	case store.ParentNote:
		note, err := s.store.GetNote(ctx, parentID)
		if err != nil {
			return err
		}
		if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	case store.ParentComment:
		comment, err := s.store.GetComment(ctx, parentID)
		if err != nil {
			return err
		}
		note, err := s.store.GetNote(ctx, comment.NoteID)
		if err != nil {
			return err
		}
		if decision := rbac.CanViewNote(session.Roles, session.UserID, note.OwnerID, note.Visibility); !decision.Allowed {
			return errForbidden(decision.Reason)
		}
	case store.ParentGroup:
		group, err := s.store.GetGroup(ctx, parentID)
		if err != nil {
			return err
		}
		visible, err := s.canSeeGroup(ctx, session, group)
		if err != nil {
			return err
		}
		if !visible {
			return errForbidden("you are not a member of this group")
		}
	default:
		return errValidation("parent_type must be Note, Comment, or Group")
	}
	return nil
}

// removeBlobs best-effort deletes payloads whose metadata rows are gone.
// DB state is authoritative; a leftover object is logged, not fatal.
func (s *Service) removeBlobs(ctx context.Context, attachments []store.Attachment) {
	if s.blobs == nil {
		return
	}
	for _, attachment := range attachments {
		key := blobKey(attachment.AttachmentID, attachment.FileName)
		if !strings.Contains(attachment.URL, key) {
			// Externally hosted attachment; nothing to clean up.
			continue
		}
		if err := s.blobs.Remove(ctx, key); err != nil {
			log.Printf("remove attachment payload %s: %v", key, err)
		}
	}
}

func blobKey(attachmentID, fileName string) string {
	return attachmentID + "/" + fileName
}

func attachmentView(attachment store.Attachment) map[string]any {
	return map[string]any{
		"id":            attachment.ID,
		"attachment_id": attachment.AttachmentID,
		"file_name":     attachment.FileName,
		"file_type":     attachment.FileType,
		"url":           attachment.URL,
		"file_size":     attachment.FileSize,
		"parent_type":   string(attachment.ParentType),
		"parent_id":     attachment.ParentID,
		"created_at":    attachment.CreatedAt,
	}
}

func attachmentViews(attachments []store.Attachment) []map[string]any {
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		items = append(items, attachmentView(attachment))
	}
	return items
}
