// Package repository provides the data access layer over posts, likes and users.
package repository

import (
	"context"
	"errors"

	"hiss/internal/models"
	"hiss/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostStore defines the data operations over posts and likes.
type PostStore interface {
	List(ctx context.Context) ([]*models.Post, error)
	ListAllLikes(ctx context.Context) ([]models.Like, error)
	ListReplies(ctx context.Context, userID uint) ([]*models.Post, error)
	ListLiked(ctx context.Context, userID uint) ([]*models.Post, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	UpdateBody(ctx context.Context, id uint, body string) error
	// Delete returns the ids of the replies it detached.
	Delete(ctx context.Context, id uint) ([]uint, error)
	ToggleLike(ctx context.Context, postID, userID uint) (*models.LikeResult, error)
	// Transaction runs fn against a store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx PostStore) error) error
}

type postStore struct {
	db *gorm.DB
}

// NewPostStore creates a new post store
func NewPostStore(db *gorm.DB) PostStore {
	return &postStore{db: db}
}

// track opens a repository span and starts the latency timer; the returned
// func closes both.
func track(ctx context.Context, op, table string) (context.Context, func(error)) {
	ctx, span := observability.StartRepositorySpan(ctx, op, table)
	done := observability.TrackQuery(op, table)
	return ctx, func(err error) {
		done()
		observability.EndSpan(span, err)
	}
}

// withAuthor selects posts joined with their author's username.
func (r *postStore) withAuthor(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("posts.*, users.username AS username").
		Joins("JOIN users ON users.id = posts.author_id")
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("posts.created DESC").Order("posts.id DESC")
}

func (r *postStore) List(ctx context.Context) (posts []*models.Post, err error) {
	ctx, finish := track(ctx, "List", "posts")
	defer func() { finish(err) }()

	posts = []*models.Post{}
	err = newestFirst(r.withAuthor(ctx)).Find(&posts).Error
	return posts, err
}

func (r *postStore) ListAllLikes(ctx context.Context) (likes []models.Like, err error) {
	ctx, finish := track(ctx, "ListAllLikes", "likes")
	defer func() { finish(err) }()

	likes = []models.Like{}
	err = r.db.WithContext(ctx).Order("post_id").Order("user_id").Find(&likes).Error
	return likes, err
}

func (r *postStore) ListReplies(ctx context.Context, userID uint) (posts []*models.Post, err error) {
	ctx, finish := track(ctx, "ListReplies", "posts")
	defer func() { finish(err) }()

	posts = []*models.Post{}
	err = newestFirst(r.withAuthor(ctx)).
		Where("posts.author_id = ? AND posts.reply_to_id IS NOT NULL", userID).
		Find(&posts).Error
	return posts, err
}

func (r *postStore) ListLiked(ctx context.Context, userID uint) (posts []*models.Post, err error) {
	ctx, finish := track(ctx, "ListLiked", "posts")
	defer func() { finish(err) }()

	posts = []*models.Post{}
	err = newestFirst(r.withAuthor(ctx)).
		Joins("JOIN likes ON likes.post_id = posts.id").
		Where("likes.user_id = ?", userID).
		Find(&posts).Error
	return posts, err
}

func (r *postStore) GetByID(ctx context.Context, id uint) (post *models.Post, err error) {
	ctx, finish := track(ctx, "GetByID", "posts")
	defer func() { finish(err) }()

	var p models.Post
	if err = r.withAuthor(ctx).Where("posts.id = ?", id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, err
	}
	return &p, nil
}

func (r *postStore) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, finish := track(ctx, "Create", "posts")
	defer func() { finish(err) }()

	if err = r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return classifyWrite(err)
	}
	return nil
}

func (r *postStore) UpdateBody(ctx context.Context, id uint, body string) (err error) {
	ctx, finish := track(ctx, "UpdateBody", "posts")
	defer func() { finish(err) }()

	res := r.db.WithContext(ctx).Model(&models.Post{ID: id}).Update("body", body)
	if res.Error != nil {
		return classifyWrite(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// Delete removes the post's likes, detaches its replies and removes the post,
// all in one transaction.
func (r *postStore) Delete(ctx context.Context, id uint) (detached []uint, err error) {
	ctx, finish := track(ctx, "Delete", "posts")
	defer func() { finish(err) }()

	detached = []uint{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).
			Where("reply_to_id = ?", id).
			Pluck("id", &detached).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).
			Where("reply_to_id = ?", id).
			Update("reply_to_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detached, nil
}

// ToggleLike inserts the (post, user) pair, or removes it when it already
// exists. Exactly one of the two happens per call.
func (r *postStore) ToggleLike(ctx context.Context, postID, userID uint) (result *models.LikeResult, err error) {
	ctx, finish := track(ctx, "ToggleLike", "likes")
	defer func() { finish(err) }()

	result = &models.LikeResult{PostID: postID, UserID: userID}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		like := models.Like{PostID: postID, UserID: userID}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			result.Liked = true
			return nil
		}
		return tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{}).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postStore) Transaction(ctx context.Context, fn func(tx PostStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&postStore{db: tx})
	})
}
