package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"triviaduel/internal/config"
	"triviaduel/internal/domain"
	"triviaduel/internal/duel"
)

// NewPlayCmd builds the CLI subcommand that runs the duel client
// interactively against a server.
func NewPlayCmd(configPath *string) *cobra.Command {
	var serverURL, playerID, displayName string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect to a duel server and play from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(*configPath, serverURL, playerID, displayName)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "websocket endpoint (overrides config)")
	cmd.Flags().StringVar(&playerID, "id", "", "player id (random if empty)")
	cmd.Flags().StringVar(&displayName, "name", "anonymous", "display name")
	return cmd
}

func runPlay(configPath, serverURL, playerID, displayName string) error {
	cfg, err := config.Load(configPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	url := serverURL
	if url == "" {
		url = cfg.Client.ServerURL
	}
	if url == "" {
		url = "ws://localhost:8080/ws"
	}
	if playerID == "" {
		playerID = "p-" + uuid.NewString()[:8]
	}

	client := duel.NewClient(duel.Config{
		ServerURL:            url,
		PingInterval:         config.Duration(cfg.Client.PingInterval, 10*time.Second),
		PongTimeout:          config.Duration(cfg.Client.PongTimeout, 5*time.Second),
		ReconnectBase:        config.Duration(cfg.Client.ReconnectBase, time.Second),
		ReconnectCap:         config.Duration(cfg.Client.ReconnectCap, 30*time.Second),
		ReconnectMaxAttempts: cfg.Client.ReconnectMaxAttempts,
		GracePeriod:          config.Duration(cfg.Client.GracePeriod, 30*time.Second),
		ResultHold:           config.Duration(cfg.Client.ResultHold, 3*time.Second),
	})
	defer client.Close()

	client.SetUser(domain.Identity{PlayerID: playerID, DisplayName: displayName})
	client.Connect()

	states, cancel := client.Subscribe()
	defer cancel()
	go renderLoop(states)

	fmt.Printf("playing as %s (%s) against %s\n", displayName, playerID, url)
	fmt.Println("commands: join, leave, <option number> to answer, clear, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "quit" || line == "exit":
			client.Disconnect()
			return nil
		case line == "join":
			client.JoinQueue()
		case line == "leave":
			client.LeaveQueue()
		case line == "clear":
			client.ClearError()
			client.ClearLastRoundResult()
		case line == "":
		default:
			if n, err := strconv.Atoi(line); err == nil {
				client.SubmitAnswer(n - 1)
			} else {
				fmt.Printf("unknown command %q\n", line)
			}
		}
	}
	client.Disconnect()
	return scanner.Err()
}

// renderLoop prints what changed between consecutive snapshots.
func renderLoop(states <-chan duel.State) {
	var prev duel.State
	prev.SelectedAnswer = -1
	for st := range states {
		if st.Connection != prev.Connection {
			fmt.Printf("[conn] %s\n", st.Connection)
		}
		if st.InQueue && (st.QueuePosition != prev.QueuePosition || !prev.InQueue) {
			fmt.Printf("[queue] position %d\n", st.QueuePosition)
		}
		if st.Match != nil && (prev.Match == nil || prev.Match.ID != st.Match.ID) {
			fmt.Printf("[match] vs %s\n", st.Match.Opponent.DisplayName)
		}
		if st.Question != nil && (prev.Question == nil || prev.Question.ID != st.Question.ID) {
			fmt.Printf("[question] %s\n", st.Question.Prompt)
			for i, opt := range st.Question.Options {
				fmt.Printf("  %d) %s\n", i+1, opt)
			}
		}
		if st.Question != nil && st.TimeRemaining != prev.TimeRemaining {
			fmt.Printf("[time] %ds\n", st.TimeRemaining)
		}
		if st.LastRound != nil && st.LastRound != prev.LastRound {
			fmt.Printf("[round] correct answer was %d\n", st.LastRound.CorrectAnswer+1)
		}
		if st.Duel == duel.DuelFinished && prev.Duel != duel.DuelFinished {
			switch {
			case st.WinnerID == "":
				fmt.Println("[duel] finished: draw")
			case st.Match != nil && st.WinnerID == st.Match.Player.PlayerID:
				fmt.Println("[duel] finished: you win!")
			default:
				fmt.Println("[duel] finished: you lose")
			}
		}
		if st.Err != "" && st.Err != prev.Err {
			fmt.Printf("[error] %s\n", st.Err)
		}
		prev = st
	}
}
