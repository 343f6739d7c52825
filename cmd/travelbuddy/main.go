// Package main is the travel-buddy command line client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/narvanalabs/travel-buddy/internal/app"
	"github.com/narvanalabs/travel-buddy/internal/shutdown"
	"github.com/narvanalabs/travel-buddy/pkg/config"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

// passwordEnv lets scripts sign in without a prompt.
const passwordEnv = "TRAVELBUDDY_PASSWORD"

// command is one travel-buddy subcommand.
type command struct {
	args    string
	summary string
	// auth commands refuse to run without a signed-in session.
	auth bool
	run  func(ctx context.Context, c *cli, args []string) error
}

// cli carries what every command needs.
type cli struct {
	app    *app.App
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// commands is filled in init: the handlers refer back to it for usage text.
var commands map[string]command

func init() {
	commands = map[string]command{
		"login":         {args: "-user NAME [-password PW]", summary: "Sign in and keep the session", run: runLogin},
		"logout":        {summary: "Sign out and drop the stored session", run: runLogout},
		"whoami":        {summary: "Show the signed-in user and subscription", auth: true, run: runWhoami},
		"trips":         {args: "[-filter active|upcoming|ongoing|completed|cancelled] [-refresh]", summary: "List your trips", auth: true, run: runTrips},
		"trip":          {args: "ID", summary: "Show one trip and what you can do with it", auth: true, run: runTrip},
		"check-dates":   {args: "-dest ID -start DATE -end DATE", summary: "Check a date range before planning", auth: true, run: runCheckDates},
		"create-trip":   {args: "-dest ID -start DATE -end DATE -max N [-activities IDS] [-description TEXT]", summary: "Create a trip", auth: true, run: runCreateTrip},
		"compatible":    {args: "-dest ID -start DATE -end DATE [-activities IDS]", summary: "Find trips you could join instead", auth: true, run: runCompatible},
		"join":          {args: "TRIP", summary: "Join a trip", auth: true, run: runJoin},
		"leave":         {args: "TRIP", summary: "Leave a trip", auth: true, run: runLeave},
		"cancel":        {args: "TRIP", summary: "Cancel a trip you created", auth: true, run: runCancel},
		"remove-member": {args: "TRIP MEMBER", summary: "Remove a member from a trip you created", auth: true, run: runRemoveMember},
		"review":        {args: "TRIP RATING [COMMENT...]", summary: "Rate a completed trip", auth: true, run: runReview},
		"reviews":       {summary: "List your reviews", auth: true, run: runReviews},
		"notifications": {args: "[-chat] [-read IDS | -mark-all | -clear]", summary: "List and manage notifications", auth: true, run: runNotifications},
		"chat":          {args: "TRIP", summary: "Join a trip's group chat; lines from stdin are sent", auth: true, run: runChat},
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: travelbuddy <command> [arguments]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-14s %s\n", name, commands[name].summary)
		if a := commands[name].args; a != "" {
			fmt.Fprintf(out, "  %-14s   %s %s\n", "", name, a)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration is read from $%s and TRAVELBUDDY_* environment variables.\n", config.ConfigFileEnv)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	a, err := app.Open(cfg, log.Logger)
	if err != nil {
		log.Error("failed to open client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coord.Register(a)
	// Registered last so a signal stops the running command before the
	// client is torn down.
	coord.Register(shutdown.CancelComponent(name, cancel))
	go coord.WaitForSignal(ctx)

	c := &cli{app: a, in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	runErr := c.execute(ctx, cmd, flag.Args()[1:])

	cancel()
	coord.Wait()

	switch {
	case errors.Is(runErr, flag.ErrHelp):
		os.Exit(2)
	case runErr != nil:
		printError(os.Stderr, runErr)
		os.Exit(1)
	}
	os.Exit(coord.ExitCode())
}

func (c *cli) execute(ctx context.Context, cmd command, args []string) error {
	if cmd.auth {
		if err := c.app.RequireSession(); err != nil {
			return err
		}
	}
	return cmd.run(ctx, c, args)
}
