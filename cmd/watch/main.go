package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/app"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const defaultWidth = 100

func main() {
	backlog := flag.Int("backlog", 10, "print the N most recent posts before tailing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, "console"); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("init", zap.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	p := &printer{out: os.Stdout, width: width(), profiles: a.Repos.Profiles, names: map[solana.PublicKey]string{}}

	if *backlog > 0 {
		recent, err := a.Repos.Posts.ListRecent(ctx, *backlog)
		if err != nil {
			logger.Warn("load backlog", zap.Error(err))
		}
		for i := len(recent) - 1; i >= 0; i-- {
			p.print(ctx, recent[i])
		}
	}

	engine := a.Engine()
	if err := engine.Start(ctx); err != nil {
		logger.Error("start engine", zap.Error(err))
		os.Exit(1)
	}
	defer engine.Stop()

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub.ID)
	for {
		select {
		case <-ctx.Done():
			return
		case post, ok := <-sub.C:
			if !ok {
				return
			}
			p.print(ctx, post)
		}
	}
}

func width() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

type printer struct {
	out      io.Writer
	width    int
	profiles repository.ProfileRepository
	names    map[solana.PublicKey]string
}

// name 优先显示用户名，缺失时显示地址前缀
func (p *printer) name(ctx context.Context, owner solana.PublicKey) string {
	if n, ok := p.names[owner]; ok {
		return n
	}
	n := owner.Short(4)
	if prof, err := p.profiles.Get(ctx, owner); err == nil && prof.Username != nil && *prof.Username != "" {
		n = "@" + *prof.Username
	}
	p.names[owner] = n
	return n
}

func (p *printer) print(ctx context.Context, post model.Post) {
	head := fmt.Sprintf("%s %s ", post.CreatedAt().Local().Format(time.TimeOnly), p.name(ctx, post.Author))
	if post.Kind == model.PostKindImage {
		head += "[img] "
	}
	body := strings.Join(strings.Fields(post.Content), " ")
	if room := p.width - len([]rune(head)); room > 1 {
		if r := []rune(body); len(r) > room {
			body = string(r[:room-1]) + "…"
		}
	}
	fmt.Fprintln(p.out, head+body)
}
