// Package cli implements the interactive command-line interface: play
// commands, a board renderer, and live notifications from the event bus.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/fourline-project/fourline/internal/client"
	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/db"
	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/history"
	"github.com/fourline-project/fourline/internal/protocol"
)

// CLI provides the interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   *client.Client
	database *db.Database
	hist     *history.Client
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, cl *client.Client,
	database *db.Database, hist *history.Client) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		client:   cl,
		database: database,
		hist:     hist,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nFourline CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	c.subscribeNotifications()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("fourline> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && err != io.EOF {
				continue
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "board", "b":
		c.printBoard()
	case "queue", "play":
		return c.cmdQueue(args)
	case "cancel":
		return c.client.CancelSearch()
	case "move", "m":
		return c.cmdMove(args)
	case "abandon":
		return c.client.Abandon()
	case "watch":
		return c.cmdWatch(args)
	case "leave":
		return c.client.LeaveSpectate()
	case "rematch", "r":
		return c.client.RequestRematch(ctx)
	case "accept":
		return c.client.RespondRematch(ctx, true)
	case "decline":
		return c.client.RespondRematch(ctx, false)
	case "profile":
		return c.printProfile()
	case "leaderboard", "top":
		return c.printLeaderboard(ctx, args)
	case "history":
		return c.printHistory(ctx, args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Fourline...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     Fourline CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status              Show connection and session state       ║")
	fmt.Println("║  board               Draw the current board                  ║")
	fmt.Println("║  queue pvp           Find a human opponent                   ║")
	fmt.Println("║  queue bot [level]   Play the bot (easy|medium|hard)         ║")
	fmt.Println("║  cancel              Leave the matchmaking queue             ║")
	fmt.Println("║  move <column>       Drop a disc (columns 1-7)               ║")
	fmt.Println("║  abandon             Forfeit the current game                ║")
	fmt.Println("║  watch <game-id>     Spectate a running game                 ║")
	fmt.Println("║  leave               Stop spectating                         ║")
	fmt.Println("║  rematch             Ask the opponent for a rematch          ║")
	fmt.Println("║  accept / decline    Answer a rematch request                ║")
	fmt.Println("║  profile             Show lifetime results                   ║")
	fmt.Println("║  leaderboard [n]     Show the top players                    ║")
	fmt.Println("║  history [player]    Show recent finished games              ║")
	fmt.Println("║  quit                Shutdown Fourline                       ║")
	fmt.Println("║  help                Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the connection and session state.
func (c *CLI) printStatus() {
	snap := c.client.Snapshot()
	sess := snap.Session

	fmt.Printf("\n  Connection:   %s\n", snap.Connection)
	if snap.ConnectionErr != "" {
		fmt.Printf("  Last error:   %s\n", snap.ConnectionErr)
	}
	fmt.Printf("  Session:      %s\n", sess.Status)

	switch sess.Status {
	case "playing":
		if sess.Spectating {
			fmt.Printf("  Watching:     %s vs %s (game %s)\n", sess.Player1, sess.Player2, sess.GameID)
			if sess.SpectatorCount > 0 {
				fmt.Printf("  Spectators:   %d\n", sess.SpectatorCount)
			}
		} else {
			fmt.Printf("  Game:         %s (%s)\n", sess.GameID, sess.Mode)
			fmt.Printf("  Opponent:     %s\n", sess.Opponent)
			fmt.Printf("  You are:      player %d\n", sess.MyPlayer)
			if sess.MyTurn {
				fmt.Println("  Turn:         yours")
			} else {
				fmt.Printf("  Turn:         player %d\n", sess.CurrentTurn)
			}
		}
		if sess.OpponentDisconnected {
			fmt.Printf("  Opponent disconnected, %ds grace remaining\n", sess.GraceRemaining)
		}
	case "finished":
		fmt.Printf("  Result:       %s (%s)\n", sess.Winner, sess.Reason)
		if sess.AllowRematch {
			fmt.Println("  Rematch:      available, type 'rematch'")
		}
		if sess.RematchState != "" {
			fmt.Printf("  Rematch state: %s\n", sess.RematchState)
		}
	}
	fmt.Println()
}

// printBoard draws the board grid.
func (c *CLI) printBoard() {
	sess := c.client.Snapshot().Session
	if sess.Board == nil {
		fmt.Println("No game in progress.")
		return
	}

	fmt.Println()
	fmt.Println("   1   2   3   4   5   6   7")
	fmt.Println(" ┌───┬───┬───┬───┬───┬───┬───┐")
	for r, row := range sess.Board {
		fmt.Print(" │")
		for col, cell := range row {
			mark := "   "
			switch cell {
			case 1:
				mark = " ● "
			case 2:
				mark = " ○ "
			}
			if sess.LastMove != nil && sess.LastMove.Row == r && sess.LastMove.Column == col {
				mark = "[" + strings.TrimSpace(mark) + "]"
			}
			fmt.Print(mark + "│")
		}
		fmt.Println()
		if r < len(sess.Board)-1 {
			fmt.Println(" ├───┼───┼───┼───┼───┼───┼───┤")
		}
	}
	fmt.Println(" └───┴───┴───┴───┴───┴───┴───┘")
	if sess.MyPlayer != 0 {
		you := "●"
		if sess.MyPlayer == 2 {
			you = "○"
		}
		fmt.Printf("   you: %s", you)
		if sess.MyTurn {
			fmt.Print("   (your turn)")
		}
		fmt.Println()
	}
	fmt.Println()
}

func (c *CLI) cmdQueue(args []string) error {
	mode := protocol.ModePvP
	difficulty := ""
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}
	if len(args) > 1 {
		difficulty = strings.ToLower(args[1])
	}

	if err := c.client.FindMatch(mode, difficulty); err != nil {
		return err
	}
	fmt.Printf("Searching for a %s game...\n", mode)
	return nil
}

func (c *CLI) cmdMove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: move <column 1-7>")
	}
	col, err := strconv.Atoi(args[0])
	if err != nil || col < 1 || col > 7 {
		return fmt.Errorf("invalid column: %s", args[0])
	}
	// Displayed columns are 1-based; the wire is 0-based.
	return c.client.MakeMove(col - 1)
}

func (c *CLI) cmdWatch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watch <game-id>")
	}
	if err := c.client.Watch(args[0]); err != nil {
		return err
	}
	fmt.Printf("Watching game %s\n", args[0])
	return nil
}

func (c *CLI) printProfile() error {
	if c.database == nil {
		return fmt.Errorf("profile store not available")
	}
	profile, err := c.database.GetProfile(c.cfg.GetServerData().Username)
	if err != nil {
		return err
	}
	if profile == nil {
		fmt.Println("No games recorded yet.")
		return nil
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Player", "Games", "Wins", "Losses", "Draws", "Abandons"})
	tw.SetBorder(true)
	tw.Append([]string{
		profile.DisplayName,
		strconv.Itoa(profile.Games()),
		strconv.Itoa(profile.Wins),
		strconv.Itoa(profile.Losses),
		strconv.Itoa(profile.Draws),
		strconv.Itoa(profile.Abandons),
	})
	tw.Render()
	return nil
}

func (c *CLI) printLeaderboard(ctx context.Context, args []string) error {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := c.hist.Leaderboard(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Leaderboard is empty.")
		return nil
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Rank", "Player", "Wins", "Losses", "Draws", "Win rate"})
	tw.SetBorder(true)
	for _, e := range entries {
		tw.Append([]string{
			strconv.Itoa(e.Rank),
			e.Player,
			strconv.Itoa(e.Wins),
			strconv.Itoa(e.Losses),
			strconv.Itoa(e.Draws),
			fmt.Sprintf("%.0f%%", e.WinRate*100),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printHistory(ctx context.Context, args []string) error {
	player := c.cfg.GetServerData().DisplayName
	if len(args) > 0 {
		player = args[0]
	}

	games, err := c.hist.RecentGames(ctx, player, 10)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Println("No recent games.")
		return nil
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Game", "Players", "Winner", "Reason", "Mode", "Moves"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for _, g := range games {
		tw.Append([]string{
			g.GameID,
			g.Player1 + " vs " + g.Player2,
			g.Winner,
			g.Reason,
			g.Mode,
			strconv.Itoa(g.Moves),
		})
	}
	tw.Render()
	return nil
}

// subscribeNotifications prints live session events between prompts.
func (c *CLI) subscribeNotifications() {
	c.eventBus.Subscribe(events.EventGameStarted, "cli.gameStarted", func(ctx context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.GameStartedPayload); ok {
			if p.Spectator {
				fmt.Printf("\n>> Now spectating game %s\n", p.GameID)
			} else if p.Rematch {
				fmt.Printf("\n>> Rematch on! You are player %d against %s\n", p.MyPlayer, p.Opponent)
			} else {
				fmt.Printf("\n>> Game found! You are player %d against %s\n", p.MyPlayer, p.Opponent)
			}
		}
		return nil
	})

	c.eventBus.Subscribe(events.EventGameOver, "cli.gameOver", func(ctx context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.GameOverPayload); ok {
			verdict := p.Winner
			switch {
			case p.Winner == "draw":
				verdict = "draw"
			case p.MyPlayer != 0 && p.Winner == fmt.Sprintf("player%d", p.MyPlayer):
				verdict = "you win!"
			case p.MyPlayer != 0:
				verdict = "you lose"
			}
			fmt.Printf("\n>> Game over: %s (%s)\n", verdict, p.Reason)
			if p.AllowRematch {
				fmt.Println(">> Rematch available, type 'rematch'")
			}
		}
		return nil
	})

	c.eventBus.Subscribe(events.EventRematchUpdated, "cli.rematch", func(ctx context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.RematchPayload); ok && p.State == "received" {
			from := p.From
			if from == "" {
				from = "opponent"
			}
			fmt.Printf("\n>> %s wants a rematch. Type 'accept' or 'decline'.\n", from)
		}
		return nil
	})

	c.eventBus.Subscribe(events.EventOpponentDisconnected, "cli.opponentGone", func(ctx context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.DisconnectPayload); ok {
			fmt.Printf("\n>> Opponent disconnected. %ds to reconnect...\n", p.RemainingSeconds)
		}
		return nil
	})

	c.eventBus.Subscribe(events.EventOpponentReconnected, "cli.opponentBack", func(ctx context.Context, e events.Event) error {
		fmt.Println("\n>> Opponent reconnected, game on.")
		return nil
	})

	c.eventBus.Subscribe(events.EventNotice, "cli.notice", func(ctx context.Context, e events.Event) error {
		if p, ok := e.Payload.(events.NoticePayload); ok {
			fmt.Printf("\n>> %s\n", p.Message)
		}
		return nil
	})
}
