package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/blob"
	"inkwell/api/internal/config"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// Session is the authenticated actor threaded explicitly through every
// service call. Handlers never read identity from anywhere else.
type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Username     string
	Roles        rbac.RoleSet
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) (int64, error)
	GetUserByID(context.Context, int64) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)

	CreateNote(context.Context, store.Note, []int64, []int64, []int64) (int64, error)
	GetNote(context.Context, int64) (store.Note, error)
	ListNotes(context.Context, store.NoteFilter) ([]store.Note, error)
	UpdateNote(context.Context, store.Note, *[]int64, *[]int64, *[]int64) error
	DeleteNote(context.Context, int64) error
	AddNoteTag(context.Context, int64, int64) error
	NoteTags(context.Context, int64) ([]store.TagRef, error)
	NoteNotebooks(context.Context, int64) ([]store.NotebookRef, error)
	NoteConnections(context.Context, int64) ([]store.NoteRef, error)

	CreateNotebook(context.Context, store.Notebook) (int64, error)
	GetNotebook(context.Context, int64) (store.Notebook, error)
	ListNotebooks(context.Context, int64, bool) ([]store.Notebook, error)
	UpdateNotebook(context.Context, store.Notebook) error
	DeleteNotebook(context.Context, int64) error
	AddNotebookNote(context.Context, int64, int64) error
	NotebookNotes(context.Context, int64) ([]store.NoteRef, error)

	CreateTag(context.Context, store.Tag) (int64, error)
	GetTag(context.Context, int64) (store.Tag, error)
	GetTagByName(context.Context, string) (store.Tag, error)
	ListTags(context.Context) ([]store.Tag, error)
	DeleteTag(context.Context, int64) error

	CreateComment(context.Context, store.Comment) (int64, error)
	GetComment(context.Context, int64) (store.Comment, error)
	ListComments(context.Context, int64) ([]store.Comment, error)
	UpdateComment(context.Context, int64, string) error
	DeleteComment(context.Context, int64) error

	CreateGroup(context.Context, store.Group, []int64, []int64) (int64, error)
	GetGroup(context.Context, int64) (store.Group, error)
	ListGroups(context.Context, store.GroupFilter) ([]store.Group, error)
	UpdateGroup(context.Context, store.Group, *[]int64, *[]int64) error
	DeleteGroup(context.Context, int64) error
	AddGroupMember(context.Context, int64, int64) error
	GroupMembers(context.Context, int64) ([]store.UserRef, error)
	GroupNotebooks(context.Context, int64) ([]store.NotebookRef, error)

	CreateAttachment(context.Context, store.Attachment) (int64, error)
	GetAttachment(context.Context, int64) (store.Attachment, error)
	ListAttachments(context.Context, store.ParentType, int64) ([]store.Attachment, error)
	DeleteAttachment(context.Context, int64) error
	ParentExists(context.Context, store.ParentType, int64) (bool, error)

	Ping(ctx context.Context) error
}

// SessionStore is the refresh-token and revocation backend. Redis when
// configured, the Postgres store otherwise.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type blobStore interface {
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (string, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	accounts *authpw.Service
	blobs    blobStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, blobs *blob.Store) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: authpw.NewService(dataStore),
	}
	if blobs != nil {
		svc.blobs = blobs
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// UploadsEnabled reports whether an object storage backend is wired.
func (s *Service) UploadsEnabled() bool {
	return s.blobs != nil
}

// --- Account lifecycle ---

// SignUp registers the account and signs it in, so the response carries
// a usable token alongside the user view.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (map[string]any, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"token":         session.Token,
		"refresh_token": session.RefreshToken,
		"expires_at":    session.ExpiresAt.Unix(),
		"user":          userView(user),
	}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Refresh tokens rotate: the presented token is spent even if the
	// rest of the exchange fails.
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	roles, err := rbac.ParseRoles(user.Roles)
	if err != nil {
		return Session{}, fmt.Errorf("stored roles for user %d: %w", user.ID, err)
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("JTI")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Username,
		Roles: roles.Names(),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("RFT") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		Roles:        roles,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	// Roles come from the user record, not the token, so a role change
	// takes effect before the token expires.
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	roles, err := rbac.ParseRoles(user.Roles)
	if err != nil {
		return Session{}, fmt.Errorf("stored roles for user %d: %w", user.ID, err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     roles,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Users ---

func (s *Service) Me(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return userView(user), nil
}

func (s *Service) ListUsers(ctx context.Context, session Session) (map[string]any, error) {
	if decision := rbac.CanListUsers(session.Roles); !decision.Allowed {
		return nil, errForbidden(decision.Reason)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, userView(user))
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

func (s *Service) GetUser(ctx context.Context, session Session, userID int64) (map[string]any, error) {
	if userID != session.UserID {
		if decision := rbac.CanListUsers(session.Roles); !decision.Allowed {
			return nil, errForbidden(decision.Reason)
		}
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userView(user), nil
}

// --- Views ---

func userView(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"user_id":     user.UserID,
		"user_name":   user.Username,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"email":       user.Email,
		"phone":       user.Phone,
		"institution": user.Institution,
		"roles":       user.Roles,
		"created_at":  user.CreatedAt,
	}
}

func userRefView(ref store.UserRef) map[string]any {
	return map[string]any{
		"id":         ref.ID,
		"user_name":  ref.Username,
		"first_name": ref.FirstName,
		"last_name":  ref.LastName,
	}
}

func tagRefViews(refs []store.TagRef) []map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		items = append(items, map[string]any{"id": ref.ID, "name": ref.Name})
	}
	return items
}

func notebookRefViews(refs []store.NotebookRef) []map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		items = append(items, map[string]any{"id": ref.ID, "notebook_id": ref.NotebookID, "name": ref.Name})
	}
	return items
}

func noteRefViews(refs []store.NoteRef) []map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		items = append(items, map[string]any{"id": ref.ID, "note_id": ref.NoteID, "title": ref.Title})
	}
	return items
}
