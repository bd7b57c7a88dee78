// Command main runs the development database seeder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"hiss/internal/config"
	"hiss/internal/database"
	"hiss/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of top-level posts to create")
	numReplies := flag.Int("replies", defaults.NumReplies, "Number of replies to create")
	numLikes := flag.Int("likes", defaults.NumLikes, "Number of likes to create")
	shouldClean := flag.Bool("clean", defaults.ShouldClean, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Skip bcrypt hashing of user passwords")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible content (0 uses the clock)")
	printTokens := flag.Bool("tokens", true, "Print a bearer token for every seeded user")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	opts := defaults
	opts.NumUsers = *numUsers
	opts.NumPosts = *numPosts
	opts.NumReplies = *numReplies
	opts.NumLikes = *numLikes
	opts.ShouldClean = *shouldClean
	opts.SkipBcrypt = *fast
	opts.Seed = *randSeed

	log.Printf("Target: %d users, %d posts, %d replies, %d likes, clean=%v",
		opts.NumUsers, opts.NumPosts, opts.NumReplies, opts.NumLikes, opts.ShouldClean)

	res, err := seed.NewSeeder(db, opts).Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d posts, %d replies, %d likes",
		len(res.Users), len(res.Posts), len(res.Replies), res.Likes)
	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)

	if !*printTokens {
		return
	}
	tokens, err := seed.Tokens(cfg.JWTSecret, res.Users, 24*time.Hour)
	if err != nil {
		log.Fatalf("Failed to issue tokens: %v", err)
	}
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s\t%s\n", name, tokens[name])
	}
}
