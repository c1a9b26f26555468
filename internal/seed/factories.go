// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"vibely/internal/conversation"
	"vibely/internal/models"
	"vibely/internal/repository"
	"vibely/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Options tune how much and how realistic the generated data is.
type Options struct {
	// SkipBcrypt stores a cheap hash so large seeds finish quickly.
	SkipBcrypt bool
	// MaxDays spreads post timestamps over the last MaxDays days.
	MaxDays int
	// PrivateRatio is the share of posts created with isPublic=false.
	PrivateRatio float64
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db    *gorm.DB
	chats repository.ChatRepository
	opts  Options
	rng   *rand.Rand

	passwordHash string
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	//nolint:gosec // Weak random number generator is fine for seeding
	return &Factory{
		db:    db,
		chats: repository.NewChatRepository(db),
		opts:  opts,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *Factory) hashedPassword() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	cost := bcrypt.DefaultCost
	if f.opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return "", err
	}
	f.passwordHash = string(hash)
	return f.passwordHash, nil
}

// Username derives a valid handle from a fake person, suffixing n to keep it
// unique within one run.
func Username(first, last string, n int) string {
	base := strings.ToLower(first + "_" + last)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, base)
	suffix := fmt.Sprintf("%d", n)
	if maxBase := 20 - len(suffix); len(base) > maxBase {
		base = base[:maxBase]
	}
	name := base + suffix
	for len(name) < 3 {
		name += "_"
	}
	return name
}

// CreateUser constructs and persists a sample user. Optional overrides may
// modify the generated user before saving.
func (f *Factory) CreateUser(n int, overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.hashedPassword()
	if err != nil {
		return nil, err
	}

	person := gofakeit.Person()
	username := Username(person.FirstName, person.LastName, n)
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Name:     truncateChars(person.FirstName+" "+person.LastName, validation.MaxNameChars),
		Bio:      truncateChars(gofakeit.Sentence(10), 160),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		Password: hash,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post with a realistic created_at spread but does not
// persist it.
func (f *Factory) BuildPost(user *models.User) *models.Post {
	post := &models.Post{
		Content:  truncateChars(gofakeit.Paragraph(1, 3, 8, " "), validation.MaxPostChars),
		UserID:   user.ID,
		IsPublic: f.rng.Float64() >= f.opts.PrivateRatio,
	}
	if f.rng.Intn(4) == 0 {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID())
	}

	daysBack := f.rng.Intn(f.opts.MaxDays)
	hoursBack := f.rng.Intn(24)
	minsBack := f.rng.Intn(60)
	post.CreatedAt = time.Now().Add(-time.Duration(daysBack)*24*time.Hour -
		time.Duration(hoursBack)*time.Hour - time.Duration(minsBack)*time.Minute)
	return post
}

// CreatePostsBatch persists multiple posts in a single DB call.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.CreateInBatches(&posts, 100).Error
}

// CreateComment persists a comment on post, optionally replying to parent.
func (f *Factory) CreateComment(post *models.Post, author *models.User, parent *models.Comment) (*models.Comment, error) {
	comment := &models.Comment{
		Content: truncateChars(gofakeit.Sentence(f.rng.Intn(12)+3), validation.MaxPostChars),
		UserID:  author.ID,
		PostID:  post.ID,
	}
	if parent != nil {
		comment.ParentID = &parent.ID
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// Like records user's like on post; duplicates are ignored.
func (f *Factory) Like(user *models.User, post *models.Post) error {
	like := &models.Like{UserID: user.ID, PostID: post.ID}
	return f.db.Where(like).FirstOrCreate(like).Error
}

// CreateConversation writes count alternating messages between a and b and
// the matching inbox thread.
func (f *Factory) CreateConversation(ctx context.Context, a, b *models.User, count int) (string, error) {
	key := conversation.Key(a.ID, b.ID)
	start := time.Now().Add(-time.Duration(count) * time.Minute)

	var last *models.ChatMessage
	for i := 0; i < count; i++ {
		sender := a
		if i%2 == 1 {
			sender = b
		}
		pushKey, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		msg := &models.ChatMessage{
			PushKey:         pushKey.String(),
			ConversationKey: key,
			Seq:             int64(i + 1),
			Text:            gofakeit.Sentence(f.rng.Intn(10) + 2),
			UserID:          sender.ID,
			UserEmail:       sender.Email,
			CreatedAtMs:     start.Add(time.Duration(i) * time.Minute).UnixMilli(),
		}
		if err := f.chats.CreateMessage(ctx, msg); err != nil {
			return "", err
		}
		last = msg
	}
	if last == nil {
		return key, nil
	}

	low, high, err := conversation.Parse(key)
	if err != nil {
		return "", err
	}
	err = f.chats.UpsertThread(ctx, &models.ChatThread{
		Key:           key,
		UserAID:       low,
		UserBID:       high,
		LastMessage:   last.Text,
		LastSenderID:  last.UserID,
		LastMessageAt: time.UnixMilli(last.CreatedAtMs).UTC(),
	})
	if err != nil {
		return "", err
	}
	log.Printf("seeded conversation %s with %d messages", key, count)
	return key, nil
}

func truncateChars(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return strings.TrimSpace(string(runes))
}
