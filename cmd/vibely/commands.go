package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"vibely/internal/client/api"
	"vibely/internal/client/chat"
	"vibely/internal/client/feed"
	"vibely/internal/client/likes"
	"vibely/internal/validation"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"signup":   cmdSignup,
	"login":    cmdLogin,
	"logout":   cmdLogout,
	"me":       cmdMe,
	"feed":     cmdFeed,
	"post":     cmdPost,
	"like":     cmdLike,
	"comments": cmdComments,
	"comment":  cmdComment,
	"search":   cmdSearch,
	"username": cmdUsername,
	"profile":  cmdProfile,
	"upload":   cmdUpload,
	"chats":    cmdChats,
	"chat":     cmdChat,
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

func cmdSignup(ctx context.Context, a *app, args []string) error {
	fs := newFlags("signup")
	var in api.SignupInput
	fs.StringVar(&in.Username, "username", "", "username (3-20 of a-z, 0-9, _)")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&in.Password, "password", "", "password")
	fs.StringVar(&in.Name, "name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := a.client.Auth().Signup(ctx, in)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Welcome, @%s (id %d)\n", res.User.Username, res.User.ID)
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := a.client.Auth().Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Logged in as @%s\n", res.User.Username)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.client.Auth().Logout(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func cmdMe(ctx context.Context, a *app, _ []string) error {
	me, err := a.client.Auth().Me(ctx)
	if err != nil {
		return err
	}
	printUser(a.stdout, me)
	return nil
}

func printUser(w io.Writer, u *api.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "id\t%d\n", u.ID)
	_, _ = fmt.Fprintf(tw, "username\t@%s\n", u.Username)
	_, _ = fmt.Fprintf(tw, "name\t%s\n", u.Name)
	_, _ = fmt.Fprintf(tw, "email\t%s\n", u.Email)
	if u.Avatar != "" {
		_, _ = fmt.Fprintf(tw, "avatar\t%s\n", u.Avatar)
	}
	_, _ = fmt.Fprintf(tw, "verified\t%v\n", u.Verified)
	_ = tw.Flush()
}

func printPosts(w io.Writer, posts []api.Post) {
	for _, p := range posts {
		author := "?"
		if p.User != nil {
			author = "@" + p.User.Username
		}
		heart := "♡"
		if p.Liked {
			heart = "♥"
		}
		_, _ = fmt.Fprintf(w, "#%d %s · %s\n", p.ID, author, p.CreatedAt.Local().Format(time.DateTime))
		if p.Content != "" {
			_, _ = fmt.Fprintf(w, "  %s\n", p.Content)
		}
		if p.Image != "" {
			_, _ = fmt.Fprintf(w, "  [image] %s\n", p.Image)
		}
		_, _ = fmt.Fprintf(w, "  %s %d  💬 %d\n\n", heart, p.LikesCount, p.CommentsCount)
	}
}

func cmdFeed(ctx context.Context, a *app, args []string) error {
	fs := newFlags("feed")
	more := fs.Int("more", 0, "load this many extra pages")
	interactive := fs.Bool("i", false, "read more/refresh/like/quit commands from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := feed.New(a.client.Posts(), a.cfg.FeedPageSize)
	if err := f.LoadFeed(ctx, false); err != nil {
		return err
	}
	for i := 0; i < *more; i++ {
		if !f.State().HasMore {
			break
		}
		if err := f.LoadFeed(ctx, true); err != nil {
			return err
		}
	}
	if !*interactive {
		state := f.State()
		printPosts(a.stdout, state.Posts)
		if !state.HasMore {
			_, _ = fmt.Fprintln(a.stdout, "-- end of feed --")
		}
		return nil
	}
	return feedLoop(ctx, a, f)
}

// feedLoop drives the feed from stdin, one command per line.
func feedLoop(ctx context.Context, a *app, f *feed.Feed) error {
	me, err := a.client.Auth().Me(ctx)
	if err != nil {
		return err
	}
	toggler := likes.New(f, a.client.Actions(), me.ID, a.logger)
	defer toggler.Wait()

	printPosts(a.stdout, f.State().Posts)
	scanner := bufio.NewScanner(a.stdin)
	for {
		_, _ = fmt.Fprint(a.stdout, "feed> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "more", "m":
			if !f.State().HasMore {
				_, _ = fmt.Fprintln(a.stdout, "-- end of feed --")
				continue
			}
			before := len(f.State().Posts)
			if err := f.LoadFeed(ctx, true); err != nil {
				_, _ = fmt.Fprintln(a.stdout, describe(err))
				continue
			}
			printPosts(a.stdout, f.State().Posts[before:])
		case "refresh", "r":
			if err := f.Refresh(ctx); err != nil {
				_, _ = fmt.Fprintln(a.stdout, describe(err))
				continue
			}
			printPosts(a.stdout, f.State().Posts)
		case "like", "l":
			if len(fields) < 2 {
				_, _ = fmt.Fprintln(a.stdout, "usage: like <post-id>")
				continue
			}
			id, err := parseID(fields[1])
			if err != nil {
				_, _ = fmt.Fprintln(a.stdout, err)
				continue
			}
			liked, err := toggler.Toggle(ctx, id)
			if err != nil {
				_, _ = fmt.Fprintln(a.stdout, err)
				continue
			}
			post, _ := f.Post(id)
			_, _ = fmt.Fprintf(a.stdout, "#%d liked=%v (%d)\n", id, liked, post.LikesCount)
		case "quit", "q":
			return nil
		default:
			_, _ = fmt.Fprintln(a.stdout, "commands: more, refresh, like <id>, quit")
		}

		select {
		case err := <-toggler.Errors():
			_, _ = fmt.Fprintf(a.stdout, "like failed and was undone: %s\n", describe(err))
		default:
		}
	}
}

func cmdPost(ctx context.Context, a *app, args []string) error {
	fs := newFlags("post")
	imagePath := fs.String("image", "", "image file to attach")
	private := fs.Bool("private", false, "hide from the public feed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content := strings.Join(fs.Args(), " ")

	// Checked before the image upload.
	if err := validation.CanPost(content, *imagePath != ""); err != nil {
		return err
	}
	image := ""
	if *imagePath != "" {
		url, err := a.uploadFile(ctx, *imagePath)
		if err != nil {
			return err
		}
		image = url
	}
	public := !*private
	post, err := a.client.Posts().Create(ctx, content, image, &public)
	if err != nil {
		return err
	}
	printPosts(a.stdout, []api.Post{*post})
	return nil
}

func cmdLike(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: like <post-id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := a.client.Actions().Like(ctx, id, nil)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "#%d liked=%v (%d)\n", id, res.Liked, res.LikesCount)
	return nil
}

func cmdComments(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: comments <post-id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	comments, err := a.client.Actions().Comments(ctx, id)
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No comments yet")
	}
	printComments(a.stdout, comments, 0)
	return nil
}

func printComments(w io.Writer, comments []*api.Comment, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range comments {
		author := "?"
		if c.User != nil {
			author = "@" + c.User.Username
		}
		_, _ = fmt.Fprintf(w, "%s[%d] %s: %s (♥ %d)\n", indent, c.ID, author, c.Content, len(c.Likes))
		printComments(w, c.Replies, depth+1)
	}
}

func cmdComment(ctx context.Context, a *app, args []string) error {
	fs := newFlags("comment")
	reply := fs.Uint("reply", 0, "comment id to reply to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: comment [-reply id] <post-id> <text>")
	}
	postID, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	var parent *uint
	if *reply != 0 {
		p := *reply
		parent = &p
	}
	c, err := a.client.Actions().AddComment(ctx, postID, strings.Join(fs.Args()[1:], " "), parent, "")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Comment %d added\n", c.ID)
	return nil
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: search <prefix>")
	}
	users, err := a.client.Search().Users(ctx, args[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, u := range users {
		_, _ = fmt.Fprintf(tw, "%d\t@%s\t%s\n", u.ID, u.Username, u.Name)
	}
	return tw.Flush()
}

func cmdUsername(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: username <new-username>")
	}
	u, err := a.client.Account().UpdateUsername(ctx, args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "Username is now @%s\n", u.Username)
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := newFlags("profile")
	name := fs.String("name", "", "display name")
	avatar := fs.String("avatar", "", "avatar url or image file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	avatarURL := *avatar
	if avatarURL != "" && !strings.HasPrefix(avatarURL, "http://") && !strings.HasPrefix(avatarURL, "https://") {
		url, err := a.uploadFile(ctx, avatarURL)
		if err != nil {
			return err
		}
		avatarURL = url
	}
	u, err := a.client.Account().UpdateProfile(ctx, *name, avatarURL)
	if err != nil {
		return err
	}
	printUser(a.stdout, u)
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: upload <file>")
	}
	url, err := a.uploadFile(ctx, args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, url)
	return nil
}

func (a *app) uploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return a.images.Upload(ctx, data)
}

func cmdChats(ctx context.Context, a *app, _ []string) error {
	threads, err := a.client.Inbox().Chats(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No conversations yet")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, t := range threads {
		who := t.Key
		if t.Participant != nil {
			who = "@" + t.Participant.Username
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", who, t.LastMessageAt.Local().Format(time.DateTime), t.LastMessage)
	}
	return tw.Flush()
}

func cmdChat(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: chat <user-id>")
	}
	other, err := parseID(args[0])
	if err != nil {
		return err
	}
	me, err := a.client.Auth().Me(ctx)
	if err != nil {
		return err
	}
	if other == me.ID {
		return errors.New("you cannot message yourself")
	}

	cfg := chat.ConfigFor(a.client)
	cfg.ReconnectDelay = a.cfg.ReconnectDelay
	cfg.Logger = a.logger
	cfg.Ticket = a.client.Auth().WSTicket
	var conv *chat.Sync
	cfg.OnSnapshot = func(list []api.Message) {
		printMessages(a.stdout, conv, list)
	}
	conv, err = chat.New(chat.ConversationKey(me.ID, other), me.ID, a.client.Inbox(), cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- conv.Run(ctx)
		cancel()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conv.Close()
			return <-runErr
		case line, ok := <-lines:
			if !ok {
				_ = conv.Close()
				return <-runErr
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := conv.Send(ctx, line); err != nil {
				_, _ = fmt.Fprintf(a.stdout, "not sent: %s\n", describe(err))
			}
		}
	}
}

func printMessages(w io.Writer, s *chat.Sync, list []api.Message) {
	_, _ = fmt.Fprintln(w, "────────")
	for _, m := range list {
		mark := ""
		if s != nil && s.Delivered(m) {
			mark = " ✓"
		}
		_, _ = fmt.Fprintf(w, "[%s] %s: %s%s\n", m.Time().Local().Format(time.TimeOnly), m.UserEmail, m.Text, mark)
	}
}
