package entities

import (
	"errors"
	"math"
)

// Common errors
var (
	ErrInvalidRecord     = errors.New("invalid task record")
	ErrEmptyRecordSource = errors.New("no task records found")
)

// InvalidID is the value an identifier takes when its raw input is not numeric.
// Coercion never fails; callers compare against this sentinel instead.
const InvalidID int64 = math.MinInt64

// Relation kinds the server groups related tasks under.
const (
	RelationSubtask    = "subtask"
	RelationParentTask = "parenttask"
	RelationRelated    = "related"
	RelationDuplicates = "duplicates"
	RelationBlocking   = "blocking"
	RelationBlocked    = "blocked"
	RelationPrecedes   = "precedes"
	RelationFollows    = "follows"
	RelationCopiedFrom = "copiedfrom"
	RelationCopiedTo   = "copiedto"
)

// DefaultLabelColor is used for labels created without a color.
const DefaultLabelColor = "#e8e8e8"

// User represents a user attached to a task (assignee or creator)
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Email    string  `json:"email,omitempty"`
	Created  Instant `json:"created"`
	Updated  Instant `json:"updated"`
}

// NewUser normalizes a raw user record.
func NewUser(raw Record) User {
	r := raw.withDefaults(Record{
		"id":       0,
		"username": "",
		"name":     "",
		"email":    "",
		"created":  nil,
		"updated":  nil,
	})

	return User{
		ID:       r.Int64("id"),
		Username: r.String("username"),
		Name:     r.String("name"),
		Email:    r.String("email"),
		Created:  r.Instant("created"),
		Updated:  r.Instant("updated"),
	}
}

// DisplayName returns the name if set, the username otherwise.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Record converts the user back into its raw form.
func (u User) Record() Record {
	return Record{
		"id":       u.ID,
		"username": u.Username,
		"name":     u.Name,
		"email":    u.Email,
		"created":  u.Created.recordValue(),
		"updated":  u.Updated.recordValue(),
	}
}

// Label represents a label attached to a task
type Label struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	HexColor    string  `json:"hexColor"`
	CreatedBy   User    `json:"createdBy"`
	Created     Instant `json:"created"`
	Updated     Instant `json:"updated"`
}

// NewLabel normalizes a raw label record.
func NewLabel(raw Record) Label {
	r := raw.withDefaults(Record{
		"id":          0,
		"title":       "",
		"description": "",
		"hexColor":    "",
		"createdBy":   Record{},
		"created":     nil,
		"updated":     nil,
	})

	return Label{
		ID:          r.Int64("id"),
		Title:       r.String("title"),
		Description: r.String("description"),
		HexColor:    NormalizeHexColor(r.String("hexColor"), DefaultLabelColor),
		CreatedBy:   NewUser(r.Record("createdBy")),
		Created:     r.Instant("created"),
		Updated:     r.Instant("updated"),
	}
}

// HasDarkColor reports whether the label color needs light text on top of it.
func (l Label) HasDarkColor() bool {
	return HasDarkColor(l.HexColor)
}

// Record converts the label back into its raw form.
func (l Label) Record() Record {
	return Record{
		"id":          l.ID,
		"title":       l.Title,
		"description": l.Description,
		"hexColor":    stripHash(l.HexColor),
		"createdBy":   l.CreatedBy.Record(),
		"created":     l.Created.recordValue(),
		"updated":     l.Updated.recordValue(),
	}
}

// File is the stored file behind an attachment
type File struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Mime    string  `json:"mime"`
	Size    int64   `json:"size"`
	Created Instant `json:"created"`
}

// Attachment represents a file attached to a task
type Attachment struct {
	ID        int64   `json:"id"`
	TaskID    int64   `json:"taskID"`
	CreatedBy User    `json:"createdBy"`
	File      File    `json:"file"`
	Created   Instant `json:"created"`
}

// NewAttachment normalizes a raw attachment record.
func NewAttachment(raw Record) Attachment {
	r := raw.withDefaults(Record{
		"id":        0,
		"taskID":    0,
		"createdBy": Record{},
		"file":      Record{},
		"created":   nil,
	})

	f := r.Record("file").withDefaults(Record{
		"id":      0,
		"name":    "",
		"mime":    "",
		"size":    0,
		"created": nil,
	})

	return Attachment{
		ID:        r.Int64("id"),
		TaskID:    r.Int64("taskID"),
		CreatedBy: NewUser(r.Record("createdBy")),
		File: File{
			ID:      f.Int64("id"),
			Name:    f.String("name"),
			Mime:    f.String("mime"),
			Size:    f.Int64("size"),
			Created: f.Instant("created"),
		},
		Created: r.Instant("created"),
	}
}

// Record converts the attachment back into its raw form.
func (a Attachment) Record() Record {
	return Record{
		"id":        a.ID,
		"taskID":    a.TaskID,
		"createdBy": a.CreatedBy.Record(),
		"file": Record{
			"id":      a.File.ID,
			"name":    a.File.Name,
			"mime":    a.File.Mime,
			"size":    a.File.Size,
			"created": a.File.Created.recordValue(),
		},
		"created": a.Created.recordValue(),
	}
}
