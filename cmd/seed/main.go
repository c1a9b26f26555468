// Command seed fills the configured database with fake users, posts,
// engagement and conversations for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"vibely/internal/config"
	"vibely/internal/database"
	"vibely/internal/seed"
)

type options struct {
	users    int
	posts    int
	messages int
	clean    bool
	seed     seed.Options
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.users, "users", 50, "Number of users to create")
	flag.IntVar(&o.posts, "posts", 200, "Number of posts to create")
	flag.IntVar(&o.messages, "messages", 12, "Messages per seeded conversation")
	flag.BoolVar(&o.clean, "clean", true, "Clean database before seeding")
	flag.BoolVar(&o.seed.SkipBcrypt, "fast", false, "Use the minimum bcrypt cost")
	flag.IntVar(&o.seed.MaxDays, "days", 30, "Spread post timestamps over this many days")
	flag.Float64Var(&o.seed.PrivateRatio, "private", 0.1, "Share of posts that are not public")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()
	log.Printf("🌱 Seeding %d users, %d posts (clean=%v)", o.users, o.posts, o.clean)

	if err := run(context.Background(), o); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("✨ Done. Every seeded user has the password %q", seed.DefaultPassword)
}

func run(ctx context.Context, o options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}

	s := seed.NewSeeder(db, o.seed)
	if o.clean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}

	users, err := s.SeedUsers(o.users)
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}
	if _, err := s.SeedEngagement(users, o.posts); err != nil {
		return fmt.Errorf("engagement: %w", err)
	}
	if _, err := s.SeedChats(ctx, users, o.messages); err != nil {
		return fmt.Errorf("chats: %w", err)
	}
	return nil
}
