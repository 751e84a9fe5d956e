// ABOUTME: Admin CLI for inspecting the chatdesk database
// ABOUTME: Reads the SQLite store directly; profiles, history, search, promos, stats

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/magicair/chatdesk/internal/store"
)

const banner = `
       _           _      _           _                  _           _
   ___| |__   __ _| |_ __| | ___  ___| | __    __ _  __| |_ __ ___ (_)_ __
  / __| '_ \ / _' | __/ _' |/ _ \/ __| |/ /   / _' |/ _' | '_ ' _ \| | '_ \
 | (__| | | | (_| | || (_| |  __/\__ \   <   | (_| | (_| | | | | | | | | | |
  \___|_| |_|\__,_|\__\__,_|\___||___/_|\_\   \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dbPath := os.Getenv("CHATDESK_DB")
	if dbPath == "" {
		dbPath = "chatdesk.db"
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "profiles":
		err = withStore(dbPath, cmdProfiles)
	case "history":
		err = withStore(dbPath, func(ctx context.Context, db store.Store) error {
			return cmdHistory(ctx, db, args)
		})
	case "search":
		err = withStore(dbPath, func(ctx context.Context, db store.Store) error {
			return cmdSearch(ctx, db, args)
		})
	case "promos":
		err = withStore(dbPath, cmdPromos)
	case "stats":
		err = withStore(dbPath, cmdStats)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: chatdesk-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  profiles            List customer profiles")
	fmt.Println("  history <id> [n]    Show the last n messages for a client (default 20)")
	fmt.Println("  search <text>       Search the message log")
	fmt.Println("  promos              List active promotions")
	fmt.Println("  stats               Show aggregate statistics")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CHATDESK_DB         Database path (default: chatdesk.db)")
}

func withStore(path string, fn func(context.Context, store.Store) error) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database %s not found (set CHATDESK_DB)", path)
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func cmdProfiles(ctx context.Context, db store.Store) error {
	profiles, err := db.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tNAME\tPHONE\tBIRTHDAY\tNOTIF\tLAST ACTIVITY")
	for _, p := range profiles {
		notif := "off"
		if p.Notifications {
			notif = "on"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ClientID, orDash(p.Name), orDash(p.Phone), orDash(p.Birthday),
			notif, formatTime(p.LastActivity))
	}
	return w.Flush()
}

func cmdHistory(ctx context.Context, db store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chatdesk-admin history <client-id> [n]")
	}
	clientID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid client id %q", args[0])
	}
	limit := 20
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil || limit < 1 {
			return fmt.Errorf("invalid limit %q", args[1])
		}
	}

	entries, err := db.ClientHistory(ctx, clientID, limit, 0)
	if err != nil {
		return err
	}
	printLog(entries)
	return nil
}

func cmdSearch(ctx context.Context, db store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chatdesk-admin search <text>")
	}
	entries, err := db.SearchLog(ctx, args[0], 50)
	if err != nil {
		return err
	}
	printLog(entries)
	return nil
}

func printLog(entries []store.LogEntry) {
	if len(entries) == 0 {
		fmt.Println("No messages.")
		return
	}
	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		gray.Printf("%s ", formatTime(e.CreatedAt))
		arrow := "→"
		if e.Direction == store.DirOut {
			arrow = "←"
		}
		fmt.Printf("%d %s [%s] %s\n", e.ClientID, arrow, e.Kind, e.Text)
	}
}

func cmdPromos(ctx context.Context, db store.Store) error {
	promos, err := db.ActivePromotions(ctx)
	if err != nil {
		return err
	}
	if len(promos) == 0 {
		fmt.Println("No active promotions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tENDS\tCREATED BY\tDESCRIPTION")
	for _, p := range promos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			p.Title, p.EndDate.Format("02.01.2006"), p.CreatedBy, p.Description)
	}
	return w.Flush()
}

func cmdStats(ctx context.Context, db store.Store) error {
	stats, err := db.GetStats(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Clients:\t%d\n", stats.Clients)
	fmt.Fprintf(w, "Messages:\t%d\n", stats.Messages)
	fmt.Fprintf(w, "Messages today:\t%d\n", stats.MessagesToday)
	fmt.Fprintf(w, "Active promotions:\t%d\n", stats.ActivePromos)
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Local().Format("2006-01-02 15:04")
}
