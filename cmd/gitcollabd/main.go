package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Set at build time with: -ldflags "-X main.version=1.0.0-rc1"
var version = "dev"

// Root CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Clone    CloneCmd    `cmd:"" help:"Clone a repository through the adaptive transport"`
	Fetch    FetchCmd    `cmd:"" help:"Fetch into an existing repository"`
	Push     PushCmd     `cmd:"" help:"Push refspecs to a remote"`
	Init     InitCmd     `cmd:"" help:"Initialize a new repository"`
	Add      AddCmd      `cmd:"" help:"Stage paths"`
	Commit   CommitCmd   `cmd:"" help:"Record staged changes"`
	Branch   BranchCmd   `cmd:"" help:"Create a branch at HEAD"`
	Checkout CheckoutCmd `cmd:"" help:"Switch the working tree to a branch"`
	Tag      TagCmd      `cmd:"" help:"Create a tag at HEAD"`
	Remote   RemoteCmd   `cmd:"" help:"Manage remotes"`
	Batch    BatchCmd    `cmd:"" help:"Clone a workspace of repositories concurrently"`
	Branches BranchesCmd `cmd:"" name:"list-branches" help:"List local branches"`
	Status   StatusCmd   `cmd:"" help:"Show branch and working-tree status"`
	Worktree WorktreeCmd `cmd:"" help:"Manage linked worktrees"`
	Soak     SoakCmd     `cmd:"" help:"Run a soak batch and print the report"`
	Serve    ServeCmd    `cmd:"" help:"Run the daemon loop (config watch + maintenance ticks)"`
}

// AfterApply runs after flag parsing; set up logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("gitcollabd"),
		kong.Description("Git collaboration engine with a hardened adaptive-TLS transport"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
