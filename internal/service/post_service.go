// Package service holds the post operations: precondition guards followed by
// a single store write, each inside one transaction.
package service

import (
	"context"
	"log/slog"

	"hiss/internal/cache"
	"hiss/internal/middleware"
	"hiss/internal/models"
	"hiss/internal/notifications"
	"hiss/internal/observability"
	"hiss/internal/repository"

	"github.com/redis/go-redis/v9"
)

// EventPublisher delivers feed events after a successful write.
type EventPublisher interface {
	Publish(ctx context.Context, ev notifications.Event) error
}

type PostService struct {
	store  repository.PostStore
	rdb    *redis.Client
	events EventPublisher
}

type CreatePostInput struct {
	AuthorID uint
	Body     string
}

type UpdatePostInput struct {
	UserID uint
	PostID uint
	Body   string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

type ReplyInput struct {
	AuthorID uint
	ParentID uint
	Body     string
}

// NewPostService wires the store with the optional cache client and event
// publisher; both may be nil.
func NewPostService(store repository.PostStore, rdb *redis.Client, events EventPublisher) *PostService {
	return &PostService{
		store:  store,
		rdb:    rdb,
		events: events,
	}
}

// guard loads the post and, when checkAuthor is set, requires that
// currentUserID wrote it.
func guard(ctx context.Context, store repository.PostStore, id uint, checkAuthor bool, currentUserID uint) (*models.Post, error) {
	post, err := store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if checkAuthor && post.AuthorID != currentUserID {
		return nil, models.NewForbiddenError("You can only change your own posts")
	}
	return post, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case models.IsCode(err, models.CodeNotFound):
		return observability.OutcomeNotFound
	case models.IsCode(err, models.CodeForbidden):
		return observability.OutcomeForbidden
	case models.IsCode(err, models.CodeValidation):
		return observability.OutcomeInvalid
	default:
		return observability.OutcomeError
	}
}

// publish is best-effort: a failed publish is logged and never fails the write.
func (s *PostService) publish(ctx context.Context, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, notifications.NewEvent(eventType, payload)); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// ListAll returns every post, newest first, with every like row.
func (s *PostService) ListAll(ctx context.Context) (feed *models.Feed, err error) {
	defer func() { observability.RecordOperation("list_all", outcome(err)) }()

	feed = &models.Feed{}
	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		var txErr error
		if feed.Posts, txErr = tx.List(ctx); txErr != nil {
			return txErr
		}
		feed.Likes, txErr = tx.ListAllLikes(ctx)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// ListReplies returns the replies userID wrote, newest first.
func (s *PostService) ListReplies(ctx context.Context, userID uint) (posts []*models.Post, err error) {
	defer func() { observability.RecordOperation("list_replies", outcome(err)) }()
	return s.store.ListReplies(ctx, userID)
}

// ListLikes returns the posts userID liked, newest first.
func (s *PostService) ListLikes(ctx context.Context, userID uint) (posts []*models.Post, err error) {
	defer func() { observability.RecordOperation("list_likes", outcome(err)) }()
	return s.store.ListLiked(ctx, userID)
}

// Get loads one post. With checkAuthor it fails with Forbidden unless
// currentUserID is the author.
func (s *PostService) Get(ctx context.Context, id uint, checkAuthor bool, currentUserID uint) (post *models.Post, err error) {
	defer func() { observability.RecordOperation("get", outcome(err)) }()
	return guard(ctx, s.store, id, checkAuthor, currentUserID)
}

// GetPostDetail is the public single-post read, served through the cache.
func (s *PostService) GetPostDetail(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, s.rdb, cache.PostKey(id), &post, cache.PostTTL, func() error {
		p, err := s.Get(ctx, id, false, 0)
		if err != nil {
			return err
		}
		post = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost stores a new top-level post. The store's length constraint is
// the only body check.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (created *models.Post, err error) {
	defer func() { observability.RecordOperation("create", outcome(err)) }()

	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		post := &models.Post{Body: in.Body, AuthorID: in.AuthorID}
		if err := tx.Create(ctx, post); err != nil {
			return err
		}
		var err error
		created, err = tx.GetByID(ctx, post.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notifications.EventPostCreated, created)
	return created, nil
}

// UpdatePost overwrites the body of a post the user wrote.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (updated *models.Post, err error) {
	defer func() { observability.RecordOperation("update", outcome(err)) }()

	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		post, err := guard(ctx, tx, in.PostID, true, in.UserID)
		if err != nil {
			return err
		}
		if err := tx.UpdateBody(ctx, post.ID, in.Body); err != nil {
			return err
		}
		post.Body = in.Body
		updated = post
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.Invalidate(ctx, s.rdb, cache.PostKey(in.PostID))
	s.publish(ctx, notifications.EventPostUpdated, updated)
	return updated, nil
}

// DeletePost removes a post the user wrote together with its likes; replies
// to it are kept and detached.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (err error) {
	defer func() { observability.RecordOperation("delete", outcome(err)) }()

	var detached []uint
	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		if _, err := guard(ctx, tx, in.PostID, true, in.UserID); err != nil {
			return err
		}
		var err error
		detached, err = tx.Delete(ctx, in.PostID)
		return err
	})
	if err != nil {
		return err
	}

	// Detached replies are cached with the old reply_to_id.
	keys := make([]string, 0, len(detached)+1)
	keys = append(keys, cache.PostKey(in.PostID))
	for _, id := range detached {
		keys = append(keys, cache.PostKey(id))
	}
	cache.Invalidate(ctx, s.rdb, keys...)
	s.publish(ctx, notifications.EventPostDeleted, map[string]any{"id": in.PostID})
	return nil
}

// Reply stores a new post answering an existing one.
func (s *PostService) Reply(ctx context.Context, in ReplyInput) (reply *models.Post, err error) {
	defer func() { observability.RecordOperation("reply", outcome(err)) }()

	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		parent, err := guard(ctx, tx, in.ParentID, false, in.AuthorID)
		if err != nil {
			return err
		}
		post := &models.Post{Body: in.Body, AuthorID: in.AuthorID, ReplyToID: &parent.ID}
		if err := tx.Create(ctx, post); err != nil {
			return err
		}
		reply, err = tx.GetByID(ctx, post.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notifications.EventPostReplied, reply)
	return reply, nil
}

// ToggleLike likes the post for userID, or unlikes it when already liked.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID uint) (result *models.LikeResult, err error) {
	defer func() { observability.RecordOperation("toggle_like", outcome(err)) }()

	err = s.store.Transaction(ctx, func(tx repository.PostStore) error {
		if _, err := guard(ctx, tx, postID, false, userID); err != nil {
			return err
		}
		var err error
		result, err = tx.ToggleLike(ctx, postID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.RecordLikeToggle(result.Liked)
	s.publish(ctx, notifications.EventPostLikeToggled, result)
	return result, nil
}
