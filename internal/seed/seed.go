// Package seed fills a development database with users, posts, replies and
// likes. It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hiss/internal/middleware"
	"hiss/internal/models"
	"hiss/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

// Options controls how much data the seeder creates.
type Options struct {
	NumUsers   int
	NumPosts   int
	NumReplies int
	NumLikes   int
	// MaxDays spreads post timestamps over the last MaxDays days.
	MaxDays int
	// Seed makes the generated content reproducible; zero uses the clock.
	Seed int64
	// SkipBcrypt stores the plain password, which is much faster for tests.
	SkipBcrypt  bool
	ShouldClean bool
}

// DefaultOptions returns the sizes used by cmd/seed without flags.
func DefaultOptions() Options {
	return Options{
		NumUsers:    10,
		NumPosts:    50,
		NumReplies:  30,
		NumLikes:    100,
		MaxDays:     30,
		ShouldClean: true,
	}
}

// Result lists what was created.
type Result struct {
	Users   []*models.User
	Posts   []*models.Post
	Replies []*models.Post
	Likes   int
}

// Seeder writes generated rows through the repositories.
type Seeder struct {
	db    *gorm.DB
	users repository.UserRepository
	posts repository.PostStore
	fake  *gofakeit.Faker
	opts  Options
}

// NewSeeder creates a seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	return &Seeder{
		db:    db,
		users: repository.NewUserRepository(db),
		posts: repository.NewPostStore(db),
		fake:  gofakeit.New(seed),
		opts:  opts,
	}
}

// Run clears the tables when asked and then creates users, posts, replies
// and likes in that order.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	if s.opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	res := &Result{}
	var err error

	if res.Users, err = s.createUsers(ctx, s.opts.NumUsers); err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}
	if len(res.Users) == 0 {
		return res, nil
	}
	middleware.Logger.Info("seeded users", slog.Int("count", len(res.Users)))

	if res.Posts, err = s.createPosts(ctx, res.Users, s.opts.NumPosts); err != nil {
		return nil, fmt.Errorf("failed to create posts: %w", err)
	}
	middleware.Logger.Info("seeded posts", slog.Int("count", len(res.Posts)))

	if len(res.Posts) == 0 {
		return res, nil
	}

	if res.Replies, err = s.createReplies(ctx, res.Users, res.Posts, s.opts.NumReplies); err != nil {
		return nil, fmt.Errorf("failed to create replies: %w", err)
	}
	middleware.Logger.Info("seeded replies", slog.Int("count", len(res.Replies)))

	all := append(append([]*models.Post{}, res.Posts...), res.Replies...)
	if res.Likes, err = s.createLikes(ctx, res.Users, all, s.opts.NumLikes); err != nil {
		return nil, fmt.Errorf("failed to create likes: %w", err)
	}
	middleware.Logger.Info("seeded likes", slog.Int("count", res.Likes))

	return res, nil
}

// ClearAll removes every like, post and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Like{}, &models.Post{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Seeder) createUsers(ctx context.Context, n int) ([]*models.User, error) {
	password := DefaultPassword
	if !s.opts.SkipBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		password = string(hashed)
	}

	users := make([]*models.User, 0, n)
	seen := make(map[string]struct{}, n)
	for len(users) < n {
		name := strings.ToLower(s.fake.Username())
		if _, dup := seen[name]; dup {
			name = fmt.Sprintf("%s%d", name, s.fake.Number(100, 999))
			if _, dup := seen[name]; dup {
				continue
			}
		}
		seen[name] = struct{}{}

		user := &models.User{Username: name, Password: password}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// body returns a sentence that fits the post length limit.
func (s *Seeder) body() string {
	return truncate(s.fake.Sentence(s.fake.Number(3, 20)), models.MaxPostBodyLength)
}

// truncate cuts text to at most limit characters, the unit the store's
// length check counts.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func (s *Seeder) createdAt() time.Time {
	back := time.Duration(s.fake.Number(0, s.opts.MaxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}

func (s *Seeder) pickUser(users []*models.User) *models.User {
	return users[s.fake.Number(0, len(users)-1)]
}

func (s *Seeder) pickPost(posts []*models.Post) *models.Post {
	return posts[s.fake.Number(0, len(posts)-1)]
}

func (s *Seeder) createPosts(ctx context.Context, users []*models.User, n int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, n)
	for range n {
		post := &models.Post{
			Body:     s.body(),
			AuthorID: s.pickUser(users).ID,
			Created:  s.createdAt(),
		}
		if err := s.posts.Create(ctx, post); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Seeder) createReplies(ctx context.Context, users []*models.User, parents []*models.Post, n int) ([]*models.Post, error) {
	replies := make([]*models.Post, 0, n)
	for range n {
		parent := s.pickPost(parents)
		created := s.createdAt()
		if created.Before(parent.Created) {
			created = parent.Created.Add(time.Duration(s.fake.Number(1, 120)) * time.Minute)
		}
		parentID := parent.ID
		reply := &models.Post{
			Body:      s.body(),
			AuthorID:  s.pickUser(users).ID,
			Created:   created,
			ReplyToID: &parentID,
		}
		if err := s.posts.Create(ctx, reply); err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// createLikes toggles up to n distinct (post, user) pairs on. Pairs already
// liked are skipped so no toggle removes an earlier like.
func (s *Seeder) createLikes(ctx context.Context, users []*models.User, posts []*models.Post, n int) (int, error) {
	if limit := len(users) * len(posts); n > limit {
		n = limit
	}

	type pair struct{ post, user uint }
	liked := make(map[pair]struct{}, n)
	for attempts := 0; len(liked) < n && attempts < n*10; attempts++ {
		p := pair{post: s.pickPost(posts).ID, user: s.pickUser(users).ID}
		if _, ok := liked[p]; ok {
			continue
		}
		result, err := s.posts.ToggleLike(ctx, p.post, p.user)
		if err != nil {
			return len(liked), err
		}
		if result.Liked {
			liked[p] = struct{}{}
		}
	}
	return len(liked), nil
}

// Tokens issues a development bearer token for every user.
func Tokens(secret string, users []*models.User, ttl time.Duration) (map[string]string, error) {
	tokens := make(map[string]string, len(users))
	for _, u := range users {
		token, err := middleware.IssueToken(secret, u.ID, ttl)
		if err != nil {
			return nil, err
		}
		tokens[u.Username] = token
	}
	return tokens, nil
}
