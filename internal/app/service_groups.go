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

type CreateGroupInput struct {
	Name         string  `json:"name"`
	LeadEditorID *int64  `json:"lead_editor_id"`
	Members      []int64 `json:"members"`
	Notebooks    []int64 `json:"notebooks"`
}

type UpdateGroupInput struct {
	Name      *string  `json:"name"`
	Members   *[]int64 `json:"members"`
	Notebooks *[]int64 `json:"notebooks"`
}

// CreateGroup makes the caller the group's lead editor. An Admin may
// appoint a different lead.
func (s *Service) CreateGroup(ctx context.Context, session Session, input CreateGroupInput) (map[string]any, error) {
	if decision := rbac.CanCreateGroup(session.Roles); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errValidation("name is required")
	}

	leadEditorID := session.UserID
	if input.LeadEditorID != nil && *input.LeadEditorID != session.UserID {
		if !session.Roles.Has(rbac.RoleAdmin) {
			return nil, errForbidden("only Admins can appoint another lead editor")
		}
		if _, err := s.store.GetUserByID(ctx, *input.LeadEditorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errValidation("lead editor %d not found", *input.LeadEditorID)
			}
			return nil, err
		}
		leadEditorID = *input.LeadEditorID
	}

	if err := s.checkUsersExist(ctx, input.Members); err != nil {
		return nil, err
	}
	if err := s.checkNotebooksExist(ctx, input.Notebooks); err != nil {
		return nil, err
	}

	group := store.Group{
		GroupID:      util.NewID("GROUP"),
		Name:         input.Name,
		LeadEditorID: leadEditorID,
	}
	id, err := s.store.CreateGroup(ctx, group, input.Members, input.Notebooks)
	if err != nil {
		return nil, err
	}
	return s.groupDetail(ctx, id)
}

func (s *Service) GetGroup(ctx context.Context, session Session, groupID int64) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	visible, err := s.canSeeGroup(ctx, session, group)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, errForbidden("you are not a member of this group")
	}
	return s.groupDetail(ctx, group.ID)
}

func (s *Service) ListGroups(ctx context.Context, session Session) (map[string]any, error) {
	filter := store.GroupFilter{
		ViewerID:  session.UserID,
		ViewerAll: rbac.CanSeeAllGroups(session.Roles),
	}
	groups, err := s.store.ListGroups(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		items = append(items, groupSummary(group))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) UpdateGroup(ctx context.Context, session Session, groupID int64, input UpdateGroupInput) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageGroup(session.Roles, session.UserID, group.LeadEditorID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name must not be empty")
		}
		group.Name = name
	}
	if input.Members != nil {
		if err := s.checkUsersExist(ctx, *input.Members); err != nil {
			return nil, err
		}
	}
	if input.Notebooks != nil {
		if err := s.checkNotebooksExist(ctx, *input.Notebooks); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateGroup(ctx, group, input.Members, input.Notebooks); err != nil {
		return nil, err
	}
	return s.groupDetail(ctx, group.ID)
}

func (s *Service) DeleteGroup(ctx context.Context, session Session, groupID int64) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageGroup(session.Roles, session.UserID, group.LeadEditorID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}

	orphans, _ := s.store.ListAttachments(ctx, store.ParentGroup, group.ID)

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		return nil, err
	}
	s.removeBlobs(ctx, orphans)
	return map[string]any{"deleted": true, "id": group.ID}, nil
}

// AddGroupMember enrolls one user. Repeats are no-ops.
func (s *Service) AddGroupMember(ctx context.Context, session Session, groupID, userID int64) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if decision := rbac.CanManageGroup(session.Roles, session.UserID, group.LeadEditorID); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errValidation("user %d not found", userID)
		}
		return nil, err
	}

	if err := s.store.AddGroupMember(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.GroupMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	memberViews := make([]map[string]any, 0, len(members))
	for _, member := range members {
		memberViews = append(memberViews, userRefView(member))
	}
	return map[string]any{"id": group.ID, "members": memberViews}, nil
}

func (s *Service) canSeeGroup(ctx context.Context, session Session, group store.Group) (bool, error) {
	if rbac.CanSeeAllGroups(session.Roles) || group.LeadEditorID == session.UserID {
		return true, nil
	}
	members, err := s.store.GroupMembers(ctx, group.ID)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member.ID == session.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) checkUsersExist(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errValidation("user %d not found", id)
			}
			return err
		}
	}
	return nil
}

func groupSummary(group store.Group) map[string]any {
	return map[string]any{
		"id":          group.ID,
		"group_id":    group.GroupID,
		"name":        group.Name,
		"lead_editor": userRefView(group.LeadEditor),
		"created_at":  group.CreatedAt,
		"updated_at":  group.UpdatedAt,
	}
}

func (s *Service) groupDetail(ctx context.Context, groupID int64) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.GroupMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	notebooks, err := s.store.GroupNotebooks(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, store.ParentGroup, group.ID)
	if err != nil {
		return nil, err
	}

	view := groupSummary(group)
	memberViews := make([]map[string]any, 0, len(members))
	for _, member := range members {
		memberViews = append(memberViews, userRefView(member))
	}
	view["members"] = memberViews
	view["notebooks"] = notebookRefViews(notebooks)
	view["attachments"] = attachmentViews(attachments)
	return view, nil
}
