package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"hiss/internal/cache"
	"hiss/internal/config"
	"hiss/internal/database"
	"hiss/internal/models"
	"hiss/internal/notifications"
	"hiss/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postStoreStub is a stub for repository.PostStore.
type postStoreStub struct {
	listFn         func(context.Context) ([]*models.Post, error)
	listAllLikesFn func(context.Context) ([]models.Like, error)
	listRepliesFn  func(context.Context, uint) ([]*models.Post, error)
	listLikedFn    func(context.Context, uint) ([]*models.Post, error)
	getByIDFn      func(context.Context, uint) (*models.Post, error)
	createFn       func(context.Context, *models.Post) error
	updateBodyFn   func(context.Context, uint, string) error
	deleteFn       func(context.Context, uint) ([]uint, error)
	toggleLikeFn   func(context.Context, uint, uint) (*models.LikeResult, error)

	transactions int
}

func (s *postStoreStub) List(ctx context.Context) ([]*models.Post, error) {
	return s.listFn(ctx)
}
func (s *postStoreStub) ListAllLikes(ctx context.Context) ([]models.Like, error) {
	return s.listAllLikesFn(ctx)
}
func (s *postStoreStub) ListReplies(ctx context.Context, userID uint) ([]*models.Post, error) {
	return s.listRepliesFn(ctx, userID)
}
func (s *postStoreStub) ListLiked(ctx context.Context, userID uint) ([]*models.Post, error) {
	return s.listLikedFn(ctx, userID)
}
func (s *postStoreStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postStoreStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postStoreStub) UpdateBody(ctx context.Context, id uint, body string) error {
	return s.updateBodyFn(ctx, id, body)
}
func (s *postStoreStub) Delete(ctx context.Context, id uint) ([]uint, error) {
	return s.deleteFn(ctx, id)
}
func (s *postStoreStub) ToggleLike(ctx context.Context, postID, userID uint) (*models.LikeResult, error) {
	return s.toggleLikeFn(ctx, postID, userID)
}
func (s *postStoreStub) Transaction(_ context.Context, fn func(repository.PostStore) error) error {
	s.transactions++
	return fn(s)
}

func failIfCalled(t *testing.T, name string) {
	t.Helper()
	t.Fatalf("%s should not be called", name)
}

// noopPostStore answers every read with post 1 by user 10 and fails the test
// on writes that were not expected.
func noopPostStore(t *testing.T) *postStoreStub {
	return &postStoreStub{
		listFn:         func(context.Context) ([]*models.Post, error) { return []*models.Post{}, nil },
		listAllLikesFn: func(context.Context) ([]models.Like, error) { return []models.Like{}, nil },
		listRepliesFn:  func(context.Context, uint) ([]*models.Post, error) { return []*models.Post{}, nil },
		listLikedFn:    func(context.Context, uint) ([]*models.Post, error) { return []*models.Post{}, nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, Body: "hello", AuthorID: 10, Username: "alice"}, nil
		},
		createFn: func(context.Context, *models.Post) error {
			failIfCalled(t, "Create")
			return nil
		},
		updateBodyFn: func(context.Context, uint, string) error {
			failIfCalled(t, "UpdateBody")
			return nil
		},
		deleteFn: func(context.Context, uint) ([]uint, error) {
			failIfCalled(t, "Delete")
			return nil, nil
		},
		toggleLikeFn: func(context.Context, uint, uint) (*models.LikeResult, error) {
			failIfCalled(t, "ToggleLike")
			return nil, nil
		},
	}
}

func notFound(_ context.Context, id uint) (*models.Post, error) {
	return nil, models.NewNotFoundError("Post", id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func TestPostService_ListAll(t *testing.T) {
	repo := noopPostStore(t)
	repo.listFn = func(context.Context) ([]*models.Post, error) {
		return []*models.Post{{ID: 2}, {ID: 1}}, nil
	}
	repo.listAllLikesFn = func(context.Context) ([]models.Like, error) {
		return []models.Like{{PostID: 1, UserID: 3}}, nil
	}
	svc := NewPostService(repo, nil, nil)

	feed, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, feed.Posts, 2)
	assert.True(t, feed.LikedBy(1, 3))
	assert.Equal(t, 1, repo.transactions)
}

func TestPostService_ListAllPropagatesStoreError(t *testing.T) {
	repo := noopPostStore(t)
	errDB := errors.New("db down")
	repo.listAllLikesFn = func(context.Context) ([]models.Like, error) { return nil, errDB }

	_, err := NewPostService(repo, nil, nil).ListAll(context.Background())
	assert.ErrorIs(t, err, errDB)
}

func TestPostService_ListRepliesAndLikes(t *testing.T) {
	repo := noopPostStore(t)
	var repliesFor, likesFor uint
	repo.listRepliesFn = func(_ context.Context, uid uint) ([]*models.Post, error) {
		repliesFor = uid
		return []*models.Post{{ID: 5}}, nil
	}
	repo.listLikedFn = func(_ context.Context, uid uint) ([]*models.Post, error) {
		likesFor = uid
		return []*models.Post{{ID: 6}, {ID: 7}}, nil
	}
	svc := NewPostService(repo, nil, nil)

	replies, err := svc.ListReplies(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, replies, 1)
	assert.Equal(t, uint(4), repliesFor)

	liked, err := svc.ListLikes(context.Background(), 8)
	require.NoError(t, err)
	assert.Len(t, liked, 2)
	assert.Equal(t, uint(8), likesFor)
}

func TestPostService_Get(t *testing.T) {
	repo := noopPostStore(t)
	svc := NewPostService(repo, nil, nil)
	ctx := context.Background()

	post, err := svc.Get(ctx, 1, true, 10)
	require.NoError(t, err)
	assert.Equal(t, uint(10), post.AuthorID)

	_, err = svc.Get(ctx, 1, false, 99)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, 1, true, 99)
	assertAppErrorCode(t, err, models.CodeForbidden)

	repo.getByIDFn = notFound
	_, err = svc.Get(ctx, 1, true, 10)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestPostService_GetPostDetailUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := noopPostStore(t)
	reads := 0
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		reads++
		return &models.Post{ID: id, Body: "cached body", AuthorID: 10, Username: "alice"}, nil
	}
	svc := NewPostService(repo, rdb, nil)
	ctx := context.Background()

	first, err := svc.GetPostDetail(ctx, 3)
	require.NoError(t, err)
	second, err := svc.GetPostDetail(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, reads)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, "alice", second.Username)

	raw, err := mr.Get(cache.PostKey(3))
	require.NoError(t, err)
	var stored models.Post
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "cached body", stored.Body)
}

func TestPostService_GetPostDetailNotFoundIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := noopPostStore(t)
	repo.getByIDFn = notFound

	_, err := NewPostService(repo, rdb, nil).GetPostDetail(context.Background(), 3)
	assertAppErrorCode(t, err, models.CodeNotFound)
	assert.False(t, mr.Exists(cache.PostKey(3)))
}

func TestPostService_CreatePost(t *testing.T) {
	repo := noopPostStore(t)
	var stored *models.Post
	repo.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 42
		stored = p
		return nil
	}
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return &models.Post{ID: id, Body: stored.Body, AuthorID: stored.AuthorID, Username: "alice"}, nil
	}
	events := &recordingPublisher{}
	svc := NewPostService(repo, nil, events)

	post, err := svc.CreatePost(context.Background(), CreatePostInput{AuthorID: 10, Body: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, uint(42), post.ID)
	assert.Equal(t, "alice", post.Username)
	assert.Nil(t, stored.ReplyToID)
	assert.Equal(t, []string{notifications.EventPostCreated}, events.types())
}

func TestPostService_CreatePostValidationFromStore(t *testing.T) {
	repo := noopPostStore(t)
	repo.createFn = func(context.Context, *models.Post) error {
		return models.NewValidationError(repository.ErrBodyTooLong)
	}
	events := &recordingPublisher{}

	_, err := NewPostService(repo, nil, events).CreatePost(context.Background(), CreatePostInput{AuthorID: 10, Body: "x"})
	assertAppErrorCode(t, err, models.CodeValidation)
	assert.Equal(t, "You can only post upto 150 characters", err.Error())
	assert.Empty(t, events.types())
}

func TestPostService_UpdatePost(t *testing.T) {
	tests := []struct {
		name         string
		userID       uint
		getByID      func(context.Context, uint) (*models.Post, error)
		updateErr    error
		expectedCode string
		expectUpdate bool
	}{
		{name: "author updates", userID: 10, expectUpdate: true},
		{name: "non-author forbidden", userID: 11, expectedCode: models.CodeForbidden},
		{name: "missing post", userID: 10, getByID: notFound, expectedCode: models.CodeNotFound},
		{
			name:         "body rejected by store",
			userID:       10,
			updateErr:    models.NewValidationError(repository.ErrBodyTooLong),
			expectedCode: models.CodeValidation,
			expectUpdate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := noopPostStore(t)
			if tt.getByID != nil {
				repo.getByIDFn = tt.getByID
			}
			updated := false
			repo.updateBodyFn = func(_ context.Context, id uint, body string) error {
				updated = true
				assert.Equal(t, uint(1), id)
				assert.Equal(t, "new body", body)
				return tt.updateErr
			}
			events := &recordingPublisher{}
			svc := NewPostService(repo, nil, events)

			post, err := svc.UpdatePost(context.Background(), UpdatePostInput{UserID: tt.userID, PostID: 1, Body: "new body"})
			assert.Equal(t, tt.expectUpdate, updated)
			if tt.expectedCode != "" {
				assertAppErrorCode(t, err, tt.expectedCode)
				assert.Empty(t, events.types())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "new body", post.Body)
			assert.Equal(t, []string{notifications.EventPostUpdated}, events.types())
		})
	}
}

func TestPostService_UpdateInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := noopPostStore(t)
	repo.updateBodyFn = func(context.Context, uint, string) error { return nil }
	repo.deleteFn = func(context.Context, uint) ([]uint, error) { return nil, nil }
	svc := NewPostService(repo, rdb, nil)
	ctx := context.Background()

	_, err := svc.GetPostDetail(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.PostKey(1)))

	_, err = svc.UpdatePost(ctx, UpdatePostInput{UserID: 10, PostID: 1, Body: "edited"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PostKey(1)))

	_, err = svc.GetPostDetail(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePost(ctx, DeletePostInput{UserID: 10, PostID: 1}))
	assert.False(t, mr.Exists(cache.PostKey(1)))
}

func TestPostService_DeletePost(t *testing.T) {
	repo := noopPostStore(t)
	var deleted uint
	repo.deleteFn = func(_ context.Context, id uint) ([]uint, error) {
		deleted = id
		return nil, nil
	}
	events := &recordingPublisher{}
	svc := NewPostService(repo, nil, events)
	ctx := context.Background()

	err := svc.DeletePost(ctx, DeletePostInput{UserID: 11, PostID: 1})
	assertAppErrorCode(t, err, models.CodeForbidden)
	assert.Zero(t, deleted)

	require.NoError(t, svc.DeletePost(ctx, DeletePostInput{UserID: 10, PostID: 1}))
	assert.Equal(t, uint(1), deleted)
	assert.Equal(t, []string{notifications.EventPostDeleted}, events.types())
}

func TestPostService_Reply(t *testing.T) {
	repo := noopPostStore(t)
	var stored *models.Post
	repo.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 77
		stored = p
		return nil
	}
	events := &recordingPublisher{}
	svc := NewPostService(repo, nil, events)

	reply, err := svc.Reply(context.Background(), ReplyInput{AuthorID: 99, ParentID: 1, Body: "me too"})
	require.NoError(t, err)
	assert.Equal(t, uint(77), reply.ID)
	require.NotNil(t, stored.ReplyToID)
	assert.Equal(t, uint(1), *stored.ReplyToID)
	assert.Equal(t, uint(99), stored.AuthorID)
	assert.Equal(t, []string{notifications.EventPostReplied}, events.types())
}

func TestPostService_ReplyToMissingParent(t *testing.T) {
	repo := noopPostStore(t)
	repo.getByIDFn = notFound

	_, err := NewPostService(repo, nil, nil).Reply(context.Background(), ReplyInput{AuthorID: 1, ParentID: 5, Body: "hi"})
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestPostService_ToggleLike(t *testing.T) {
	repo := noopPostStore(t)
	liked := map[[2]uint]bool{}
	repo.toggleLikeFn = func(_ context.Context, postID, userID uint) (*models.LikeResult, error) {
		key := [2]uint{postID, userID}
		liked[key] = !liked[key]
		return &models.LikeResult{PostID: postID, UserID: userID, Liked: liked[key]}, nil
	}
	events := &recordingPublisher{err: errors.New("redis down")}
	svc := NewPostService(repo, nil, events)
	ctx := context.Background()

	// Non-authors and authors alike may like.
	res, err := svc.ToggleLike(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Liked)

	res, err = svc.ToggleLike(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, res.Liked)

	assert.Equal(t, []string{notifications.EventPostLikeToggled, notifications.EventPostLikeToggled}, events.types())

	repo.getByIDFn = notFound
	_, err = svc.ToggleLike(ctx, 2, 10)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&config.Config{DBDriver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPostService_DeleteInvalidatesDetachedReplies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := setupSQLite(t)
	ctx := context.Background()
	users := repository.NewUserRepository(db)
	alice := &models.User{Username: "alice", Password: "hash"}
	bob := &models.User{Username: "bob", Password: "hash"}
	require.NoError(t, users.Create(ctx, alice))
	require.NoError(t, users.Create(ctx, bob))

	svc := NewPostService(repository.NewPostStore(db), rdb, nil)

	parent, err := svc.CreatePost(ctx, CreatePostInput{AuthorID: alice.ID, Body: "parent"})
	require.NoError(t, err)
	reply, err := svc.Reply(ctx, ReplyInput{AuthorID: bob.ID, ParentID: parent.ID, Body: "reply"})
	require.NoError(t, err)

	cached, err := svc.GetPostDetail(ctx, reply.ID)
	require.NoError(t, err)
	require.True(t, cached.IsReply())
	require.True(t, mr.Exists(cache.PostKey(reply.ID)))

	require.NoError(t, svc.DeletePost(ctx, DeletePostInput{UserID: alice.ID, PostID: parent.ID}))
	assert.False(t, mr.Exists(cache.PostKey(reply.ID)))

	got, err := svc.GetPostDetail(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplyToID)
	assert.False(t, got.IsReply())

	_, err = svc.GetPostDetail(ctx, parent.ID)
	assertAppErrorCode(t, err, models.CodeNotFound)
}
