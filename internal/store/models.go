package store

import "time"

type User struct {
	ID           int64
	UserID       string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Phone        []string
	Institution  string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRef is the owner/author shape embedded in entity views.
type UserRef struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type Note struct {
	ID         int64
	NoteID     string
	OwnerID    int64
	Title      string
	Content    string
	Type       string
	Visibility string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Joined owner fields for views
	Owner UserRef
}

type Notebook struct {
	ID         int64
	NotebookID string
	Name       string
	OwnerID    int64
	ParentID   *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Owner      UserRef
}

type Tag struct {
	ID        int64
	TagID     string
	Name      string
	CreatedAt time.Time
}

type Comment struct {
	ID        int64
	CommentID string
	NoteID    int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time
	Author    UserRef
}

type Group struct {
	ID           int64
	GroupID      string
	Name         string
	LeadEditorID int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LeadEditor   UserRef
}

// ParentType tags the polymorphic parent of an attachment.
type ParentType string

const (
	ParentNote    ParentType = "Note"
	ParentComment ParentType = "Comment"
	ParentGroup   ParentType = "Group"
)

// ValidParentType reports whether raw names one of the attachment parent
// kinds.
func ValidParentType(raw string) bool {
	switch ParentType(raw) {
	case ParentNote, ParentComment, ParentGroup:
		return true
	}
	return false
}

// Attachment is a weak entity; (AttachmentID, ParentType, ParentID) is
// unique.
type Attachment struct {
	ID           int64
	AttachmentID string
	FileName     string
	FileType     string
	URL          string
	FileSize     int64
	ParentType   ParentType
	ParentID     int64
	CreatedAt    time.Time
}

// NoteRef is the connected-note shape embedded in note views.
type NoteRef struct {
	ID     int64
	NoteID string
	Title  string
}

// NotebookRef is the notebook shape embedded in note and group views.
type NotebookRef struct {
	ID         int64
	NotebookID string
	Name       string
}

// TagRef is the tag shape embedded in note views.
type TagRef struct {
	ID   int64
	Name string
}

// NoteFilter narrows ListNotes. Viewer facts decide whether the
// owner-or-non-private restriction applies.
type NoteFilter struct {
	ViewerID   int64
	ViewerAll  bool // Admin: skip visibility restriction
	NotebookID int64
	TagID      int64
	UserID     int64
}

// GroupFilter narrows ListGroups to groups the viewer belongs to or
// leads, unless ViewerAll is set.
type GroupFilter struct {
	ViewerID  int64
	ViewerAll bool
}
