package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

type fakeStore struct {
	createUserFn        func(context.Context, store.User) (int64, error)
	getUserByIDFn       func(context.Context, int64) (store.User, error)
	getUserByEmailFn    func(context.Context, string) (store.User, error)
	getUserByUsernameFn func(context.Context, string) (store.User, error)
	listUsersFn         func(context.Context) ([]store.User, error)

	createNoteFn   func(context.Context, store.Note, []int64, []int64, []int64) (int64, error)
	getNoteFn      func(context.Context, int64) (store.Note, error)
	listNotesFn    func(context.Context, store.NoteFilter) ([]store.Note, error)
	updateNoteFn   func(context.Context, store.Note, *[]int64, *[]int64, *[]int64) error
	deleteNoteFn   func(context.Context, int64) error
	addNoteTagFn   func(context.Context, int64, int64) error
	noteTagsFn     func(context.Context, int64) ([]store.TagRef, error)
	createTagFn    func(context.Context, store.Tag) (int64, error)
	getTagFn       func(context.Context, int64) (store.Tag, error)
	getTagByNameFn func(context.Context, string) (store.Tag, error)
	listTagsFn     func(context.Context) ([]store.Tag, error)
	deleteTagFn    func(context.Context, int64) error

	createNotebookFn  func(context.Context, store.Notebook) (int64, error)
	getNotebookFn     func(context.Context, int64) (store.Notebook, error)
	listNotebooksFn   func(context.Context, int64, bool) ([]store.Notebook, error)
	updateNotebookFn  func(context.Context, store.Notebook) error
	deleteNotebookFn  func(context.Context, int64) error
	addNotebookNoteFn func(context.Context, int64, int64) error

	createCommentFn func(context.Context, store.Comment) (int64, error)
	getCommentFn    func(context.Context, int64) (store.Comment, error)
	listCommentsFn  func(context.Context, int64) ([]store.Comment, error)
	deleteCommentFn func(context.Context, int64) error

	createGroupFn    func(context.Context, store.Group, []int64, []int64) (int64, error)
	getGroupFn       func(context.Context, int64) (store.Group, error)
	listGroupsFn     func(context.Context, store.GroupFilter) ([]store.Group, error)
	groupMembersFn   func(context.Context, int64) ([]store.UserRef, error)
	addGroupMemberFn func(context.Context, int64, int64) error

	createAttachmentFn func(context.Context, store.Attachment) (int64, error)
	getAttachmentFn    func(context.Context, int64) (store.Attachment, error)
	listAttachmentsFn  func(context.Context, store.ParentType, int64) ([]store.Attachment, error)
	parentExistsFn     func(context.Context, store.ParentType, int64) (bool, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (int64, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return 1, nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) ListUsers(ctx context.Context) ([]store.User, error) {
	if f.listUsersFn != nil {
		return f.listUsersFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) CreateNote(ctx context.Context, note store.Note, tags, notebooks, connections []int64) (int64, error) {
	if f.createNoteFn != nil {
		return f.createNoteFn(ctx, note, tags, notebooks, connections)
	}
	return 1, nil
}
func (f *fakeStore) GetNote(ctx context.Context, id int64) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, id)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) ListNotes(ctx context.Context, filter store.NoteFilter) ([]store.Note, error) {
	if f.listNotesFn != nil {
		return f.listNotesFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) UpdateNote(ctx context.Context, note store.Note, tags, notebooks, connections *[]int64) error {
	if f.updateNoteFn != nil {
		return f.updateNoteFn(ctx, note, tags, notebooks, connections)
	}
	return nil
}
func (f *fakeStore) DeleteNote(ctx context.Context, id int64) error {
	if f.deleteNoteFn != nil {
		return f.deleteNoteFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) AddNoteTag(ctx context.Context, noteID, tagID int64) error {
	if f.addNoteTagFn != nil {
		return f.addNoteTagFn(ctx, noteID, tagID)
	}
	return nil
}
func (f *fakeStore) NoteTags(ctx context.Context, noteID int64) ([]store.TagRef, error) {
	if f.noteTagsFn != nil {
		return f.noteTagsFn(ctx, noteID)
	}
	return nil, nil
}
func (f *fakeStore) NoteNotebooks(context.Context, int64) ([]store.NotebookRef, error) {
	return nil, nil
}
func (f *fakeStore) NoteConnections(context.Context, int64) ([]store.NoteRef, error) {
	return nil, nil
}

func (f *fakeStore) CreateNotebook(ctx context.Context, notebook store.Notebook) (int64, error) {
	if f.createNotebookFn != nil {
		return f.createNotebookFn(ctx, notebook)
	}
	return 1, nil
}
func (f *fakeStore) GetNotebook(ctx context.Context, id int64) (store.Notebook, error) {
	if f.getNotebookFn != nil {
		return f.getNotebookFn(ctx, id)
	}
	return store.Notebook{}, sql.ErrNoRows
}
func (f *fakeStore) ListNotebooks(ctx context.Context, viewerID int64, viewerAll bool) ([]store.Notebook, error) {
	if f.listNotebooksFn != nil {
		return f.listNotebooksFn(ctx, viewerID, viewerAll)
	}
	return nil, nil
}
func (f *fakeStore) UpdateNotebook(ctx context.Context, notebook store.Notebook) error {
	if f.updateNotebookFn != nil {
		return f.updateNotebookFn(ctx, notebook)
	}
	return nil
}
func (f *fakeStore) DeleteNotebook(ctx context.Context, id int64) error {
	if f.deleteNotebookFn != nil {
		return f.deleteNotebookFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) AddNotebookNote(ctx context.Context, notebookID, noteID int64) error {
	if f.addNotebookNoteFn != nil {
		return f.addNotebookNoteFn(ctx, notebookID, noteID)
	}
	return nil
}
func (f *fakeStore) NotebookNotes(context.Context, int64) ([]store.NoteRef, error) { return nil, nil }

func (f *fakeStore) CreateTag(ctx context.Context, tag store.Tag) (int64, error) {
	if f.createTagFn != nil {
		return f.createTagFn(ctx, tag)
	}
	return 1, nil
}
func (f *fakeStore) GetTag(ctx context.Context, id int64) (store.Tag, error) {
	if f.getTagFn != nil {
		return f.getTagFn(ctx, id)
	}
	return store.Tag{}, sql.ErrNoRows
}
func (f *fakeStore) GetTagByName(ctx context.Context, name string) (store.Tag, error) {
	if f.getTagByNameFn != nil {
		return f.getTagByNameFn(ctx, name)
	}
	return store.Tag{}, sql.ErrNoRows
}
func (f *fakeStore) ListTags(ctx context.Context) ([]store.Tag, error) {
	if f.listTagsFn != nil {
		return f.listTagsFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) DeleteTag(ctx context.Context, id int64) error {
	if f.deleteTagFn != nil {
		return f.deleteTagFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) CreateComment(ctx context.Context, comment store.Comment) (int64, error) {
	if f.createCommentFn != nil {
		return f.createCommentFn(ctx, comment)
	}
	return 1, nil
}
func (f *fakeStore) GetComment(ctx context.Context, id int64) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, id)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) ListComments(ctx context.Context, noteID int64) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, noteID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateComment(context.Context, int64, string) error { return nil }
func (f *fakeStore) DeleteComment(ctx context.Context, id int64) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) CreateGroup(ctx context.Context, group store.Group, members, notebooks []int64) (int64, error) {
	if f.createGroupFn != nil {
		return f.createGroupFn(ctx, group, members, notebooks)
	}
	return 1, nil
}
func (f *fakeStore) GetGroup(ctx context.Context, id int64) (store.Group, error) {
	if f.getGroupFn != nil {
		return f.getGroupFn(ctx, id)
	}
	return store.Group{}, sql.ErrNoRows
}
func (f *fakeStore) ListGroups(ctx context.Context, filter store.GroupFilter) ([]store.Group, error) {
	if f.listGroupsFn != nil {
		return f.listGroupsFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) UpdateGroup(context.Context, store.Group, *[]int64, *[]int64) error { return nil }
func (f *fakeStore) DeleteGroup(context.Context, int64) error                           { return nil }
func (f *fakeStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if f.addGroupMemberFn != nil {
		return f.addGroupMemberFn(ctx, groupID, userID)
	}
	return nil
}
func (f *fakeStore) GroupMembers(ctx context.Context, groupID int64) ([]store.UserRef, error) {
	if f.groupMembersFn != nil {
		return f.groupMembersFn(ctx, groupID)
	}
	return nil, nil
}
func (f *fakeStore) GroupNotebooks(context.Context, int64) ([]store.NotebookRef, error) {
	return nil, nil
}

func (f *fakeStore) CreateAttachment(ctx context.Context, attachment store.Attachment) (int64, error) {
	if f.createAttachmentFn != nil {
		return f.createAttachmentFn(ctx, attachment)
	}
	return 1, nil
}
func (f *fakeStore) GetAttachment(ctx context.Context, id int64) (store.Attachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, id)
	}
	return store.Attachment{}, sql.ErrNoRows
}
func (f *fakeStore) ListAttachments(ctx context.Context, parentType store.ParentType, parentID int64) ([]store.Attachment, error) {
	if f.listAttachmentsFn != nil {
		return f.listAttachmentsFn(ctx, parentType, parentID)
	}
	return nil, nil
}
func (f *fakeStore) DeleteAttachment(context.Context, int64) error { return nil }
func (f *fakeStore) ParentExists(ctx context.Context, parentType store.ParentType, parentID int64) (bool, error) {
	if f.parentExistsFn != nil {
		return f.parentExistsFn(ctx, parentType, parentID)
	}
	return false, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	refresh map[string]int64
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: make(map[string]int64), revoked: make(map[string]bool)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, userID int64, _ time.Time) error {
	f.refresh[tokenHash] = userID
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (int64, error) {
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return userID, nil
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}
func (f *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}
func (f *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Minute,
			RefreshTTL:  time.Hour,
		},
		store:    fs,
		sessions: newFakeSessions(),
		accounts: authpw.NewService(fs),
	}
}

func testSession(t *testing.T, userID int64, roles ...string) Session {
	t.Helper()
	parsed, err := rbac.ParseRoles(roles)
	if err != nil {
		t.Fatalf("parse roles %v: %v", roles, err)
	}
	return Session{UserID: userID, Username: "tester", Roles: parsed}
}

func domainStatus(t *testing.T, err error) int {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Status
}

func TestCreateTagConflictIsCaseInsensitive(t *testing.T) {
	fs := &fakeStore{
		getTagByNameFn: func(_ context.Context, name string) (store.Tag, error) {
			if name == "golang" {
				return store.Tag{ID: 7, Name: "golang"}, nil
			}
			return store.Tag{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateTag(context.Background(), testSession(t, 1, "Contributor"), "  GoLang ")
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for existing tag under normalization, got %d", status)
	}
}

func TestNormalizeTagIsIdempotent(t *testing.T) {
	for _, raw := range []string{"  GoLang ", "golang", "Mixed Case", "\ttabs\t"} {
		once := normalizeTag(raw)
		if twice := normalizeTag(once); twice != once {
			t.Fatalf("normalizeTag(%q): %q then %q", raw, once, twice)
		}
	}
}

func TestResolveTagsMintsMissingNames(t *testing.T) {
	var minted []string
	fs := &fakeStore{
		createTagFn: func(_ context.Context, tag store.Tag) (int64, error) {
			if tag.TagID == "" {
				t.Fatal("minted tag must carry an external id")
			}
			minted = append(minted, tag.Name)
			return int64(len(minted)), nil
		},
	}
	svc := newTestService(fs)

	ids, err := svc.resolveTags(context.Background(), []string{" Research ", "research", "", "GO"})
	if err != nil {
		t.Fatalf("resolveTags: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tag ids after normalization and dedup, got %d", len(ids))
	}
	if len(minted) != 2 || minted[0] != "research" || minted[1] != "go" {
		t.Fatalf("minted = %v, want [research go]", minted)
	}
}

func TestUpdateNotebookRejectsCycle(t *testing.T) {
	parentOf := map[int64]*int64{1: nil, 2: ptr(int64(1)), 3: ptr(int64(2))}
	fs := &fakeStore{
		getNotebookFn: func(_ context.Context, id int64) (store.Notebook, error) {
			parent, ok := parentOf[id]
			if !ok {
				return store.Notebook{}, sql.ErrNoRows
			}
			return store.Notebook{ID: id, Name: "nb", OwnerID: 1, ParentID: parent}, nil
		},
	}
	svc := newTestService(fs)
	session := testSession(t, 1, "Contributor")

	// Moving the root under its own grandchild closes a cycle.
	_, err := svc.UpdateNotebook(context.Background(), session, 1, UpdateNotebookInput{ParentID: ptr(int64(3))})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for cycle, got %d", status)
	}

	_, err = svc.UpdateNotebook(context.Background(), session, 2, UpdateNotebookInput{ParentID: ptr(int64(2))})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-parent, got %d", status)
	}

	// A sibling move stays legal.
	updated := false
	fs.updateNotebookFn = func(_ context.Context, notebook store.Notebook) error {
		updated = true
		if notebook.ParentID == nil || *notebook.ParentID != 1 {
			t.Fatalf("expected parent 1, got %v", notebook.ParentID)
		}
		return nil
	}
	if _, err := svc.UpdateNotebook(context.Background(), session, 3, UpdateNotebookInput{ParentID: ptr(int64(1))}); err != nil {
		t.Fatalf("legal move failed: %v", err)
	}
	if !updated {
		t.Fatal("expected store update for legal move")
	}
}

func TestCreateAttachmentParentValidation(t *testing.T) {
	fs := &fakeStore{
		parentExistsFn: func(_ context.Context, parentType store.ParentType, parentID int64) (bool, error) {
			return parentType == store.ParentNote && parentID == 5, nil
		},
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			return store.Note{ID: id, OwnerID: 1, Visibility: "private"}, nil
		},
	}
	svc := newTestService(fs)
	session := testSession(t, 1, "Contributor")

	_, err := svc.CreateAttachment(context.Background(), session, CreateAttachmentInput{
		FileName: "a.pdf", ParentType: "Workspace", ParentID: 5,
	})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown parent type, got %d", status)
	}

	_, err = svc.CreateAttachment(context.Background(), session, CreateAttachmentInput{
		FileName: "a.pdf", ParentType: "Note", ParentID: 6,
	})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing parent, got %d", status)
	}
}

func TestCreateAttachmentDuplicateLinkIsConflict(t *testing.T) {
	fs := &fakeStore{
		parentExistsFn: func(context.Context, store.ParentType, int64) (bool, error) { return true, nil },
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			return store.Note{ID: id, OwnerID: 1}, nil
		},
		createAttachmentFn: func(context.Context, store.Attachment) (int64, error) {
			return 0, &pgconn.PgError{Code: "23505"}
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateAttachment(context.Background(), testSession(t, 1, "Contributor"), CreateAttachmentInput{
		AttachmentID: "ATTACH_1", FileName: "a.pdf", ParentType: "Note", ParentID: 5,
	})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate link, got %d", status)
	}
}

func TestCreateNoteValidatesType(t *testing.T) {
	var created store.Note
	fs := &fakeStore{
		createNoteFn: func(_ context.Context, note store.Note, _, _, _ []int64) (int64, error) {
			created = note
			created.ID = 1
			return 1, nil
		},
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			if created.ID != id {
				return store.Note{}, sql.ErrNoRows
			}
			return created, nil
		},
	}
	svc := newTestService(fs)
	session := testSession(t, 1, "Contributor")

	_, err := svc.CreateNote(context.Background(), session, CreateNoteInput{Title: "T", Type: "bogus"})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown note type, got %d", status)
	}

	if _, err := svc.CreateNote(context.Background(), session, CreateNoteInput{Title: "T"}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if created.Type != "text" {
		t.Fatalf("type = %q, want default text", created.Type)
	}

	_, err = svc.UpdateNote(context.Background(), session, 1, UpdateNoteInput{Type: ptr("bogus")})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown note type on update, got %d", status)
	}
}

func TestGetNoteVisibility(t *testing.T) {
	fs := &fakeStore{
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			visibility := "private"
			if id == 2 {
				visibility = "public"
			}
			return store.Note{ID: id, OwnerID: 99, Visibility: visibility}, nil
		},
	}
	svc := newTestService(fs)
	contributor := testSession(t, 1, "Contributor")

	if _, err := svc.GetNote(context.Background(), contributor, 1); err == nil {
		t.Fatal("expected foreign private note to be forbidden")
	} else if status := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	if _, err := svc.GetNote(context.Background(), contributor, 2); err != nil {
		t.Fatalf("public note should be viewable: %v", err)
	}

	if _, err := svc.GetNote(context.Background(), testSession(t, 1, "Admin"), 1); err != nil {
		t.Fatalf("admin should see any note: %v", err)
	}
}

func TestListNotesViewerScope(t *testing.T) {
	var captured store.NoteFilter
	fs := &fakeStore{
		listNotesFn: func(_ context.Context, filter store.NoteFilter) ([]store.Note, error) {
			captured = filter
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.ListNotes(context.Background(), testSession(t, 7, "Contributor"), NoteListQuery{TagID: 3}); err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if captured.ViewerAll || captured.ViewerID != 7 || captured.TagID != 3 {
		t.Fatalf("contributor filter = %+v", captured)
	}

	if _, err := svc.ListNotes(context.Background(), testSession(t, 8, "Admin"), NoteListQuery{}); err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if !captured.ViewerAll {
		t.Fatalf("admin filter must skip visibility restriction: %+v", captured)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "ada", Roles: []string{"Contributor"}}, nil
		},
	}
	svc := newTestService(fs)
	sessions := svc.sessions.(*fakeSessions)

	first, err := svc.issueSession(context.Background(), store.User{ID: 4, Username: "ada", Roles: []string{"Contributor"}})
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if second.UserID != 4 {
		t.Fatalf("user id = %d, want 4", second.UserID)
	}

	// The spent token no longer resolves.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected spent refresh token to fail")
	}
	if len(sessions.refresh) != 1 {
		t.Fatalf("expected exactly one live refresh session, got %d", len(sessions.refresh))
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "ada", Roles: []string{"Contributor"}}, nil
		},
	}
	svc := newTestService(fs)

	session, err := svc.issueSession(context.Background(), store.User{ID: 4, Username: "ada", Roles: []string{"Contributor"}})
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err != nil {
		t.Fatalf("SessionFromToken before logout: %v", err)
	}

	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatal("expected revoked access token to be rejected")
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to be rejected")
	}
}

func TestCommentRequiresViewableNote(t *testing.T) {
	fs := &fakeStore{
		getNoteFn: func(_ context.Context, id int64) (store.Note, error) {
			return store.Note{ID: id, OwnerID: 99, Visibility: "private"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateComment(context.Background(), testSession(t, 1, "Contributor"), CreateCommentInput{NoteID: 5, Text: "hi"})
	if status := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("expected 403 commenting on a foreign private note, got %d", status)
	}
}

func TestCreateGroupPolicy(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Username: "member"}, nil
		},
		getGroupFn: func(_ context.Context, id int64) (store.Group, error) {
			return store.Group{ID: id, Name: "team", LeadEditorID: 2}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateGroup(context.Background(), testSession(t, 1, "Contributor"), CreateGroupInput{Name: "team"})
	if status := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("expected 403 for contributor group create, got %d", status)
	}

	var createdLead int64
	fs.createGroupFn = func(_ context.Context, group store.Group, members, notebooks []int64) (int64, error) {
		createdLead = group.LeadEditorID
		if !strings.HasPrefix(group.GroupID, "GROUP_") {
			t.Fatalf("group external id = %q", group.GroupID)
		}
		return 9, nil
	}
	if _, err := svc.CreateGroup(context.Background(), testSession(t, 2, "Lead Editor"), CreateGroupInput{
		Name: "team", Members: []int64{1},
	}); err != nil {
		t.Fatalf("lead editor group create: %v", err)
	}
	if createdLead != 2 {
		t.Fatalf("lead editor id = %d, want the caller", createdLead)
	}
}

func ptr[T any](v T) *T { return &v }
