// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// MaxPostBodyLength is the limit enforced by the posts.body check constraint.
// It is exported for documentation and seeding; writes never pre-check it.
const MaxPostBodyLength = 150

// PostBodyCheckConstraint names the store-level length constraint on posts.body.
const PostBodyCheckConstraint = "chk_posts_body_length"

// Post represents a post (or a reply, when ReplyToID is set).
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Body      string    `gorm:"type:text;not null;check:chk_posts_body_length,length(body) <= 150" json:"body"`
	Created   time.Time `gorm:"not null;autoCreateTime;index" json:"created"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
	ReplyToID *uint     `gorm:"index" json:"reply_to_id,omitempty"`
	ReplyTo   *Post     `gorm:"foreignKey:ReplyToID;constraint:OnDelete:SET NULL" json:"-"`
	// Username is the author's username; filled by joins, never persisted.
	Username string `gorm:"->;-:migration" json:"username"`
}

// IsReply reports whether the post answers another post.
func (p *Post) IsReply() bool {
	return p.ReplyToID != nil
}

// Feed is the index view: every post plus every like row so clients can
// work out which posts the current user liked.
type Feed struct {
	Posts []*Post `json:"posts"`
	Likes []Like  `json:"likes"`
}

// LikedBy reports whether userID has a like row for postID in the feed.
func (f *Feed) LikedBy(postID, userID uint) bool {
	for _, l := range f.Likes {
		if l.PostID == postID && l.UserID == userID {
			return true
		}
	}
	return false
}
