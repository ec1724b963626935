package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nostrchat/internal/app"
	"nostrchat/internal/broker"
	"nostrchat/internal/domain"
	"nostrchat/internal/state"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run chat", "error", err)
		os.Exit(1)
	}
}

func run() error {
	relayURL := flag.String("relay", "", "relay to add and connect on startup")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()
	logger := rt.LogManager.Logger("cli")
	logger.Info("starting nostrchat cli")

	if strings.TrimSpace(*relayURL) != "" {
		url := strings.TrimSpace(*relayURL)
		rt.Broker.Submit(broker.AddRelay{URL: url})
		rt.Broker.Submit(broker.ConnectRelay{URL: url})
	}

	go renderLoop(ctx, rt)

	lines := make(chan string)
	go readLines(ctx, lines)

	fmt.Println("nostrchat ready, type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(rt, line); done {
				return nil
			}
		}
	}
}

func readLines(ctx context.Context, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case out <- scanner.Text():
		}
	}
}

// handleLine executes one input line. It reports true when the user asked
// to quit.
func handleLine(rt *app.Runtime, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "quit" || line == "exit":
		return true
	case line == "help":
		printHelp()
		return false
	case line == "show":
		snap := rt.Dispatcher.Snapshot()
		printSnapshot(snap.Config, snap.User, snap.Selected)
		return false
	case strings.HasPrefix(line, "say "):
		snap := rt.Dispatcher.Snapshot()
		if snap.Selected == nil {
			fmt.Println("no conversation selected, use 'open <pk>' first")
			return false
		}
		rt.Broker.Submit(broker.SendMessage{
			PublicKey: snap.Selected.Peer,
			Content:   strings.TrimSpace(strings.TrimPrefix(line, "say ")),
		})
		return false
	}

	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Println(err)
		return false
	}
	if !rt.Broker.Submit(cmd) {
		fmt.Println("broker is shut down")
		return true
	}

	return false
}

// parseCommand maps one input line to a broker command.
func parseCommand(line string) (broker.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "relay":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: relay <add|rm|connect|disconnect> <url>")
		}
		url := fields[2]
		switch fields[1] {
		case "add":
			return broker.AddRelay{URL: url}, nil
		case "rm":
			return broker.RemoveRelay{URL: url}, nil
		case "connect":
			return broker.ConnectRelay{URL: url}, nil
		case "disconnect":
			return broker.DisconnectRelay{URL: url}, nil
		}
		return nil, fmt.Errorf("unknown relay action: %s", fields[1])
	case "contact":
		if len(fields) != 4 {
			return nil, fmt.Errorf("usage: contact <add|rm> <alias> <pk>")
		}
		contact := domain.Contact{Alias: fields[2], PublicKey: fields[3]}
		switch fields[1] {
		case "add":
			return broker.AddContact{Contact: contact}, nil
		case "rm":
			return broker.RemoveContact{Contact: contact}, nil
		}
		return nil, fmt.Errorf("unknown contact action: %s", fields[1])
	case "key":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: key <new|restore <nsec>>")
		}
		switch fields[1] {
		case "new":
			return broker.GenerateNewKeyPair{}, nil
		case "restore":
			if len(fields) != 3 {
				return nil, fmt.Errorf("usage: key restore <nsec>")
			}
			return broker.RestoreKeyPair{SecretKey: fields[2]}, nil
		}
		return nil, fmt.Errorf("unknown key action: %s", fields[1])
	case "open":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: open <pk>")
		}
		return broker.SetConversation{PublicKey: fields[1]}, nil
	case "send":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: send <pk> <message>")
		}
		return broker.SendMessage{
			PublicKey: fields[1],
			Content:   strings.Join(fields[2:], " "),
		}, nil
	case "subscribe":
		return broker.SubscribeInRelays{}, nil
	case "reload":
		return broker.LoadConfigs{}, nil
	}

	return nil, fmt.Errorf("unknown command: %s (try 'help')", fields[0])
}

// renderLoop prints state changes as they land in the dispatcher: new
// messages in the selected conversation, command failures, and identity
// changes. An identity change is also written back to the config file.
func renderLoop(ctx context.Context, rt *app.Runtime) {
	var (
		lastMessages  int
		lastPeer      string
		lastErrorAt   string
		lastSecretKey string
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-rt.Dispatcher.Changes():
		}

		snap := rt.Dispatcher.Snapshot()

		if snap.Selected != nil {
			if snap.Selected.Peer != lastPeer {
				lastPeer = snap.Selected.Peer
				lastMessages = 0
				fmt.Printf("-- conversation with %s --\n", domain.ShortKey(lastPeer))
			}
			for _, m := range snap.Selected.Messages[min(lastMessages, len(snap.Selected.Messages)):] {
				printMessage(m)
			}
			lastMessages = len(snap.Selected.Messages)
		}

		if snap.LastError != nil {
			if at := snap.LastError.At.String(); at != lastErrorAt {
				lastErrorAt = at
				fmt.Printf("!! %s failed: %s\n", snap.LastError.Command, snap.LastError.Reason)
			}
		}

		if snap.User.SecretKey != "" && snap.User.SecretKey != lastSecretKey {
			lastSecretKey = snap.User.SecretKey
			fmt.Printf("identity: %s\n", snap.User.Npub)
			if err := rt.PersistIdentity(snap.User.SecretKey); err != nil {
				slog.Warn("persist identity", "error", err)
			}
		}
	}
}

func printMessage(m state.MessageState) {
	author := domain.ShortKey(m.Author)
	if m.Mine {
		author = "me"
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), author, m.Content)
}

func printSnapshot(cfg state.ConfigState, user state.UserState, selected *state.ConversationState) {
	fmt.Println("relays:")
	for _, url := range cfg.Relays {
		fmt.Printf("  %s\n", url)
	}
	fmt.Println("contacts:")
	for _, c := range cfg.Contacts {
		fmt.Printf("  %s %s\n", c.Alias, c.PublicKey)
	}
	if user.Npub != "" {
		fmt.Printf("identity: %s\n", user.Npub)
	}
	if selected != nil {
		fmt.Printf("open conversation: %s (%d messages)\n", domain.ShortKey(selected.Peer), len(selected.Messages))
	}
}

func printHelp() {
	fmt.Print(`commands:
  relay add <url>          add a relay to the configuration
  relay rm <url>           remove a relay
  relay connect <url>      connect to a configured relay
  relay disconnect <url>   disconnect from a relay
  contact add <alias> <pk> add a contact
  contact rm <alias> <pk>  remove a contact
  key new                  generate a fresh keypair
  key restore <nsec>       restore a keypair from a secret key
  subscribe                subscribe to direct messages on all relays
  open <pk>                open a conversation
  send <pk> <message>      send a direct message
  say <message>            send to the open conversation
  show                     print the current state
  reload                   republish the configuration snapshot
  quit                     exit
`)
}
