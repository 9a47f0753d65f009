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

// normalizeTag folds a raw tag name to the canonical lowercase form the
// uniqueness constraint applies to.
func normalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateTag mints a tag explicitly. Unlike tagging a note, an explicit
// create of an existing name is a conflict.
func (s *Service) CreateTag(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = normalizeTag(name)
	if name == "" {
		return nil, errValidation("name is required")
	}

	if _, err := s.store.GetTagByName(ctx, name); err == nil {
		return nil, errConflict("tag %q already exists", name)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id, err := s.store.CreateTag(ctx, store.Tag{TagID: util.NewID("TAG"), Name: name})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errConflict("tag %q already exists", name)
		}
		return nil, err
	}
	tag, err := s.store.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	return tagView(tag), nil
}

func (s *Service) ListTags(ctx context.Context, session Session) (map[string]any, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagView(tag))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) DeleteTag(ctx context.Context, session Session, tagID int64) (map[string]any, error) {
	if decision := rbac.CanManageTag(session.Roles); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteTag(ctx, tag.ID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": tag.ID}, nil
}

// resolveTags maps raw names to tag ids, minting missing tags. Blank
// names are dropped; duplicates after normalization collapse.
func (s *Service) resolveTags(ctx context.Context, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := normalizeTag(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		tag, err := s.store.GetTagByName(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			id, createErr := s.store.CreateTag(ctx, store.Tag{TagID: util.NewID("TAG"), Name: name})
			if createErr != nil {
				// Lost a race with a concurrent create; the tag exists now.
				if store.IsUniqueViolation(createErr) {
					tag, err = s.store.GetTagByName(ctx, name)
					if err != nil {
						return nil, err
					}
					ids = append(ids, tag.ID)
					continue
				}
				return nil, createErr
			}
			ids = append(ids, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func tagView(tag store.Tag) map[string]any {
	return map[string]any{
		"id":         tag.ID,
		"tag_id":     tag.TagID,
		"name":       tag.Name,
		"created_at": tag.CreatedAt,
	}
}
