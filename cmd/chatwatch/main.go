package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"market-chat/internal/client"
	"market-chat/internal/config"
	"market-chat/internal/logger"
	"market-chat/internal/middleware"
	"market-chat/internal/models"
	"market-chat/internal/poller"
	"market-chat/internal/tui"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8083", "chat API base URL")
	userID := flag.Int64("user", 0, "user id to sign in as")
	token := flag.String("token", "", "bearer token; minted from JWT_SECRET when empty")
	logPath := flag.String("log", "", "write logs to this file")
	flag.Parse()

	if *userID <= 0 {
		fail(fmt.Errorf("-user is required"))
	}

	// A supplied token makes the server secret unnecessary.
	cfg, err := config.Load()
	if err != nil {
		if *token == "" {
			fail(err)
		}
		cfg = &config.Config{Env: "production"}
	}

	logger.Init(cfg.Env)
	logger.SetOutput(io.Discard)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	if *token == "" {
		*token, err = middleware.IssueToken(cfg.JWTSecret, *userID, models.RoleUser, 24*time.Hour)
		if err != nil {
			fail(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.New(ctx, client.New(*baseURL, *token), *userID, poller.Options{Interval: cfg.PollInterval})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
