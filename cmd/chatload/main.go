// Command chatload is a load generator for the conversation websocket: many
// listeners subscribe to one conversation while a few senders post into it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"vibely/internal/client/api"
	"vibely/internal/client/chat"
	"vibely/internal/client/tokenstore"
)

// Metrics tracks the test results
type Metrics struct {
	Subscribers      atomic.Int64
	SubscribeErrors  atomic.Int64
	MessagesSent     atomic.Int64
	SendErrors       atomic.Int64
	SnapshotsApplied atomic.Int64
	LastListSize     atomic.Int64
}

var metrics Metrics

func main() {
	apiURL := flag.String("api", "http://localhost:8375/api", "API base URL")
	email := flag.String("email", "", "Test user email")
	password := flag.String("password", "password123", "Test user password")
	peer := flag.Uint("peer", 0, "User id of the other participant")
	listeners := flag.Int("clients", 50, "Number of concurrent subscribers")
	senders := flag.Int("senders", 2, "Number of concurrent senders")
	interval := flag.Duration("interval", time.Second, "Delay between sends per sender")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	if *email == "" || *peer == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log.Printf("🚀 Starting chat load test")
	log.Printf("Target: %s", *apiURL)
	log.Printf("Clients: %d, senders: %d, duration: %v", *listeners, *senders, *duration)

	client, err := api.New(*apiURL, tokenstore.NewMemory())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := client.Auth().Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}
	key := chat.ConversationKey(res.User.ID, *peer)
	log.Printf("✅ Logged in as @%s, conversation %s", res.User.Username, key)

	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < *listeners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listen(ctx, client, key, res.User.ID)
		}()
		time.Sleep(20 * time.Millisecond) // Stagger connections
	}
	for i := 0; i < *senders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			send(ctx, client, key, id, *interval)
		}(i)
	}

	<-ctx.Done()
	log.Println("Waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func listen(ctx context.Context, client *api.Client, key string, me uint) {
	cfg := chat.ConfigFor(client)
	cfg.OnSnapshot = func(list []api.Message) {
		metrics.SnapshotsApplied.Add(1)
		metrics.LastListSize.Store(int64(len(list)))
	}
	conv, err := chat.New(key, me, client.Inbox(), cfg)
	if err != nil {
		metrics.SubscribeErrors.Add(1)
		return
	}
	metrics.Subscribers.Add(1)
	if err := conv.Run(ctx); err != nil {
		metrics.SubscribeErrors.Add(1)
		log.Printf("subscriber stopped: %v", err)
	}
}

func send(ctx context.Context, client *api.Client, key string, id int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			_, err := client.Inbox().Send(ctx, key, fmt.Sprintf("load message %d from sender %d", n, id), time.Now())
			if err != nil {
				if ctx.Err() == nil {
					metrics.SendErrors.Add(1)
				}
				continue
			}
			metrics.MessagesSent.Add(1)
		}
	}
}

func printMetrics() {
	log.Println("📊 Test Results")
	log.Println("===============")
	log.Printf("Subscribers: %d", metrics.Subscribers.Load())
	log.Printf("Subscribe errors: %d", metrics.SubscribeErrors.Load())
	log.Printf("Messages sent: %d", metrics.MessagesSent.Load())
	log.Printf("Send errors: %d", metrics.SendErrors.Load())
	log.Printf("Snapshots applied: %d", metrics.SnapshotsApplied.Load())
	log.Printf("Last list size: %d", metrics.LastListSize.Load())
}
