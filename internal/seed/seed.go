package seed

import (
	"context"
	"fmt"
	"log"

	"vibely/internal/models"

	"gorm.io/gorm"
)

// Seeder fills a database with users, posts, engagement and conversations.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder creates a Seeder for db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// ClearAll deletes every seeded table, children first.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")
	tables := []any{
		&models.CommentLike{},
		&models.Comment{},
		&models.Like{},
		&models.Post{},
		&models.ChatMessage{},
		&models.ChatThread{},
		&models.Image{},
		&models.User{},
	}
	for _, table := range tables {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return fmt.Errorf("clear %T: %w", table, err)
		}
	}
	return nil
}

// SeedUsers creates n users sharing DefaultPassword.
func (s *Seeder) SeedUsers(n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		user, err := s.factory.CreateUser(i + 1)
		if err != nil {
			return nil, fmt.Errorf("create user %d: %w", i+1, err)
		}
		users = append(users, user)
	}
	log.Printf("✓ %d users created", len(users))
	return users, nil
}

// SeedEngagement creates numPosts posts spread over users, then likes and a
// few nested comment threads.
func (s *Seeder) SeedEngagement(users []*models.User, numPosts int) ([]*models.Post, error) {
	if len(users) == 0 || numPosts <= 0 {
		return nil, nil
	}
	rng := s.factory.rng

	posts := make([]*models.Post, 0, numPosts)
	for i := 0; i < numPosts; i++ {
		posts = append(posts, s.factory.BuildPost(users[i%len(users)]))
	}
	if err := s.factory.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	log.Printf("✓ %d posts created", len(posts))

	likes, comments := 0, 0
	for _, post := range posts {
		for _, user := range users {
			if rng.Intn(3) != 0 {
				continue
			}
			if err := s.factory.Like(user, post); err != nil {
				return nil, fmt.Errorf("like post %d: %w", post.ID, err)
			}
			likes++
		}

		var parent *models.Comment
		threadDepth := rng.Intn(4)
		for depth := 0; depth < threadDepth; depth++ {
			author := users[rng.Intn(len(users))]
			comment, err := s.factory.CreateComment(post, author, parent)
			if err != nil {
				return nil, fmt.Errorf("comment on post %d: %w", post.ID, err)
			}
			parent = comment
			comments++
		}
	}
	log.Printf("✓ %d likes and %d comments added", likes, comments)
	return posts, nil
}

// SeedChats opens a conversation between each user and the next one.
func (s *Seeder) SeedChats(ctx context.Context, users []*models.User, messagesPerChat int) ([]string, error) {
	if len(users) < 2 || messagesPerChat <= 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(users)-1)
	for i := 0; i+1 < len(users); i++ {
		key, err := s.factory.CreateConversation(ctx, users[i], users[i+1], messagesPerChat)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		keys = append(keys, key)
	}
	log.Printf("✓ %d conversations created", len(keys))
	return keys, nil
}
