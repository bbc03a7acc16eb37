package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/chess/openingbook"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
)

func main() {
	baseURL := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL"))
	token := strings.TrimSpace(os.Getenv("LICHESS_TOKEN"))
	botName := strings.TrimSpace(os.Getenv("BOT_NAME"))

	if token == "" {
		log.Fatal("LICHESS_TOKEN is required")
	}
	if baseURL == "" {
		baseURL = lichess.DefaultBaseURL
	}

	client := lichess.NewClient(baseURL, token, lichess.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	acct, err := client.Account(ctx)
	if err != nil {
		log.Printf("/api/account error: %v", err)
	} else {
		match := botName == "" || strings.EqualFold(acct.Username, botName)
		log.Printf("/api/account ok: id=%s username=%s title=%s bot_name_match=%t", acct.ID, acct.Username, acct.Title, match)
	}

	path, err := openingbook.ResolveBookPath(os.Getenv("BOOK_PATH"))
	if err != nil {
		log.Printf("opening book error: %v", err)
		return
	}
	if path == "" {
		log.Println("no opening book found; skipping repertoire check")
		return
	}
	book, err := openingbook.Load(path)
	if err != nil {
		log.Printf("opening book load error: %v", err)
		return
	}
	fmt.Printf("opening book %s: positions=%d polyglot=%t\n", path, book.Len(), book.HasPolyglot())
}
