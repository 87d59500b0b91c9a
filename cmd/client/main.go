package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/apiclient"
	"github.com/convinceme/convince-server-go/internal/config"
	"github.com/convinceme/convince-server-go/internal/countdown"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	var (
		serverURL = flag.String("server", envOr("CONVINCE_SERVER", "http://localhost:8080"), "server base URL")
		token     = flag.String("token", os.Getenv("CONVINCE_TOKEN"), "API token")
		name      = flag.String("name", "", "register a new convincer with this name")
		email     = flag.String("email", "", "email for registration")
		buy       = flag.Int("buy", 0, "purchase this many seconds before starting")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(*serverURL, *token)

	if *name != "" {
		reg, err := client.Register(ctx, *name, *email)
		if err != nil {
			fatalf("registration failed: %v", err)
		}
		fmt.Printf("Registered %s. Save your token:\n  %s\n", reg.Convincer.Name, reg.APIToken)
		client = client.Bind(reg.Convincer.ID, "")
	} else if *token == "" {
		fatalf("either -token or -name/-email is required")
	}

	if *buy > 0 {
		result, err := client.CreditTime(ctx, uuid.NewString(), *buy)
		if err != nil {
			fatalf("purchase failed: %v", err)
		}
		fmt.Printf("Purchased %ds. Balance: %ds\n", *buy, result.BalanceSeconds)
	}

	start, err := client.StartAttempt(ctx)
	if err != nil {
		fatalf("could not start attempt: %v", err)
	}
	client = client.Bind(start.Attempt.ConvincerID, start.Attempt.ID)

	if start.Resumed {
		fmt.Printf("Resumed attempt %s (score %d, %ds left)\n",
			start.Attempt.ID, start.Attempt.ConvincingScore, start.BalanceSeconds)
	} else {
		fmt.Printf("Attempt %s started with %ds on the clock.\n", start.Attempt.ID, start.BalanceSeconds)
	}
	fmt.Println("Type your arguments. Commands: /balance, /buy <seconds>, /quit")

	stream, err := client.DialEvents(ctx)
	if err != nil {
		fatalf("could not subscribe to events: %v", err)
	}
	defer stream.Close()
	go printEvents(stream)

	session := countdown.New(countdown.Config{
		InitialSeconds: start.BalanceSeconds,
		FlushInterval:  config.CountdownFlushInterval,
		Ledger:         client,
		Expirer:        client,
		Hooks: countdown.Hooks{
			OnTick: func(remaining int) {
				if remaining > 0 && remaining <= 10 {
					fmt.Printf("\r[%ds left] ", remaining)
				}
			},
			OnRearmed: func(seconds int) {
				fmt.Printf("\nClock re-armed: %ds of purchased time picked up.\n", seconds)
			},
			OnExpired: func() {
				fmt.Println("\nTime is up. The attempt has expired.")
				cancel()
			},
		},
	})

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := readLines()

	for {
		select {
		case <-ctx.Done():
			<-sessionDone
			return

		case <-quit:
			// Final flush happens inside Stop; anything it could not
			// deliver rides the beacon.
			session.Stop()
			client.Beacon(session.Unflushed())
			fmt.Println("\nInterrupted. Attempt left active; resume any time.")
			return

		case line, ok := <-lines:
			if !ok {
				session.Stop()
				client.Beacon(session.Unflushed())
				return
			}
			if handleLine(ctx, client, session, line) {
				<-sessionDone
				return
			}
		}
	}
}

// handleLine processes one input line; true means the client should exit.
func handleLine(ctx context.Context, client *apiclient.Client, session *countdown.Session, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "/quit":
		session.Stop()
		if _, err := client.Abandon(ctx, session.Unflushed()); err != nil {
			fmt.Printf("could not abandon attempt: %v\n", err)
		} else {
			fmt.Println("Attempt abandoned. Remaining balance is kept for next time.")
		}
		return true

	case line == "/balance":
		balance, err := client.Balance(ctx)
		if err != nil {
			fmt.Printf("balance check failed: %v\n", err)
			return false
		}
		fmt.Printf("Server balance: %ds (local clock: %ds)\n", balance, session.Remaining())
		return false

	case strings.HasPrefix(line, "/buy "):
		seconds, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/buy ")))
		if err != nil || seconds <= 0 {
			fmt.Println("usage: /buy <seconds>")
			return false
		}
		result, err := client.CreditTime(ctx, uuid.NewString(), seconds)
		if err != nil {
			fmt.Printf("purchase failed: %v\n", err)
			return false
		}
		fmt.Printf("Purchased %ds. Balance: %ds. The clock picks it up at zero.\n", seconds, result.BalanceSeconds)
		return false

	default:
		result, err := client.SubmitMessage(ctx, line)
		if err != nil {
			fmt.Printf("message rejected: %v\n", err)
			return false
		}
		fmt.Printf("[score %d, %+d]\n", result.Attempt.ConvincingScore, result.Delta)
		if result.Won {
			fmt.Println("Convinced! The prize is yours.")
			session.Stop()
			return true
		}
		return false
	}
}

func printEvents(stream *apiclient.EventStream) {
	for event := range stream.Events() {
		switch event.Type {
		case apiclient.EventTypeAIResponseCreated:
			fmt.Printf("\nAI: %s\n> ", event.AIResponse)
		case apiclient.EventTypeAttemptUpdated:
			if event.Status != "active" {
				fmt.Printf("\n[attempt %s]\n", event.Status)
			}
		}
	}
}

func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
