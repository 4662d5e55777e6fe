// Package domain defines the persistence models for creator content, comments,
// view events and user profiles. These types are mapped with GORM and form the
// core data layer of the platform; payment-side models live in payments.go.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ContentType enumerates the kinds of gated media a creator can publish.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentLink     ContentType = "link"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentDocument ContentType = "document"
)

// Valid reports whether t is one of the supported content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentLink, ContentImage, ContentVideo, ContentAudio, ContentDocument:
		return true
	}
	return false
}

// HasFile reports whether content of this type is backed by a stored file.
func (t ContentType) HasFile() bool {
	switch t {
	case ContentImage, ContentVideo, ContentAudio, ContentDocument:
		return true
	}
	return false
}

// ContentStatus is the publication state of a Content.
type ContentStatus string

const (
	StatusDraft     ContentStatus = "draft"
	StatusScheduled ContentStatus = "scheduled"
	StatusPublished ContentStatus = "published"
)

// Valid reports whether s is a known publication state.
func (s ContentStatus) Valid() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusPublished
}

// Content is a creator-owned, priced unit of monetizable media or text.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CreatorID: owner; only the creator may edit or delete the row.
//   - Price: decimal amount in major currency units; zero means free.
//   - Body: inline payload for text/link content (hidden without access).
//   - FilePath: object path in private storage for file-backed types.
//   - Status / ScheduledAt: publication lifecycle; scheduled rows are promoted
//     to published by the background publisher once ScheduledAt has passed.
type Content struct {
	ID          string          `json:"id"                     gorm:"type:char(36);primaryKey"`
	CreatorID   string          `json:"creator_id"             gorm:"type:varchar(64);not null;index:idx_creator_contents"`
	Title       string          `json:"title"                  gorm:"type:varchar(255);not null"`
	Description string          `json:"description"            gorm:"type:text"`
	Price       decimal.Decimal `json:"price"                  gorm:"type:numeric(12,2);not null;default:0;check:price >= 0"`
	ContentType ContentType     `json:"content_type"           gorm:"type:varchar(16);not null;check:content_type IN ('text','link','image','video','audio','document')"`
	Body        string          `json:"body,omitempty"         gorm:"type:text"`
	FilePath    *string         `json:"file_path,omitempty"    gorm:"type:varchar(512)"`
	Status      ContentStatus   `json:"status"                 gorm:"type:varchar(16);not null;default:'draft';index:idx_contents_status"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty" gorm:"index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"-"                      gorm:"index"`
}

// TableName returns the database table name for Content.
func (Content) TableName() string { return "contents" }

// IsFree reports whether the content can be opened without paying.
func (c *Content) IsFree() bool { return !c.Price.IsPositive() }

// OwnedBy reports whether userID is the creator of the content.
func (c *Content) OwnedBy(userID string) bool { return userID != "" && c.CreatorID == userID }

// Redacted returns a copy without the gated payload (body and file path).
func (c Content) Redacted() Content {
	c.Body = ""
	c.FilePath = nil
	return c
}

// Comment is a user remark on a piece of content.
type Comment struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ContentID string         `json:"content_id" gorm:"type:char(36);not null;index:idx_content_comments,priority:1"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null"`
	Body      string         `json:"body"       gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_content_comments,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Content is the commented item. Comments are cascade-deleted with it.
	Content Content `json:"-" gorm:"foreignKey:ContentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// ContentView is one recorded "content was viewed" event. Anonymous views
// carry a nil UserID.
type ContentView struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ContentID string    `json:"content_id" gorm:"type:char(36);not null;index:idx_content_views,priority:1"`
	UserID    *string   `json:"user_id"    gorm:"type:varchar(64)"`
	ViewedAt  time.Time `json:"viewed_at"  gorm:"not null;index:idx_content_views,priority:2"`
}

// TableName returns the database table name for ContentView.
func (ContentView) TableName() string { return "content_views" }

// Profile holds per-user settings, including saved payout details used by
// withdrawal requests. ID equals the auth provider's user id.
type Profile struct {
	ID                string    `json:"id"                  gorm:"type:varchar(64);primaryKey"`
	DisplayName       string    `json:"display_name"        gorm:"type:varchar(255)"`
	IsAdmin           bool      `json:"-"                   gorm:"not null;default:false"`
	UPIID             string    `json:"upi_id"              gorm:"type:varchar(128)"`
	BankAccountName   string    `json:"bank_account_name"   gorm:"type:varchar(255)"`
	BankAccountNumber string    `json:"bank_account_number" gorm:"type:varchar(64)"`
	BankIFSC          string    `json:"bank_ifsc"           gorm:"type:varchar(32)"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }
