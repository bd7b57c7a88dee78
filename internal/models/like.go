package models

import "time"

// Like represents a user's like on a post.
// The (PostID, UserID) pair is the primary key, so a pair exists at most once.
type Like struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"post_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// LikeResult is the outcome of a like toggle: Liked is true when the pair
// was inserted and false when an existing pair was removed.
type LikeResult struct {
	PostID uint `json:"post_id"`
	UserID uint `json:"user_id"`
	Liked  bool `json:"liked"`
}
