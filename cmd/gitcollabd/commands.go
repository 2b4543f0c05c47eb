package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/eventstore"
	"github.com/gitcollab/core/internal/gitops"
	"github.com/gitcollab/core/internal/maintenance"
	"github.com/gitcollab/core/internal/metrics"
	"github.com/gitcollab/core/internal/obssink"
	"github.com/gitcollab/core/internal/taskregistry"
)

// CloneCmd implements the 'clone' command.
type CloneCmd struct {
	URL      string `arg:"" help:"Repository URL"`
	Dest     string `arg:"" optional:"" help:"Destination directory (defaults to repo name)"`
	Depth    int32  `help:"Shallow clone depth (0 = full)"`
	Filter   string `help:"Partial-clone filter spec (blob:none or tree:0)"`
	Override string `help:"Per-task strategy override JSON"`
}

func (c *CloneCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	dest := c.Dest
	if dest == "" {
		dest = filepath.Base(strings.TrimSuffix(c.URL, ".git"))
	}
	var depth *int32
	if c.Depth != 0 {
		depth = &c.Depth
	}
	task := eng.registry.SpawnClone(taskregistry.CloneRequest{
		URL: c.URL, Dest: dest, Depth: depth, Filter: c.Filter,
		OverrideJSON: overrideBytes(c.Override),
	})
	return waitAndReport(task)
}

// FetchCmd implements the 'fetch' command.
type FetchCmd struct {
	Dest     string `arg:"" help:"Repository directory"`
	URL      string `help:"Remote URL, used only when the repository has no origin remote"`
	Depth    int32  `help:"Shallow fetch depth (0 = full)"`
	Override string `help:"Per-task strategy override JSON"`
}

func (c *FetchCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	var depth *int32
	if c.Depth != 0 {
		depth = &c.Depth
	}
	task := eng.registry.SpawnFetch(taskregistry.FetchRequest{
		URL: c.URL, Dest: c.Dest, Depth: depth, OverrideJSON: overrideBytes(c.Override),
	})
	return waitAndReport(task)
}

// PushCmd implements the 'push' command.
type PushCmd struct {
	Dest     string   `arg:"" help:"Repository directory"`
	Remote   string   `help:"Remote name" default:"origin"`
	Refspec  []string `help:"Refspecs to push (defaults to all local branches)"`
	Override string   `help:"Per-task strategy override JSON"`
}

func (c *PushCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	task := eng.registry.SpawnPush(taskregistry.PushRequest{
		Dest: c.Dest, Remote: c.Remote, RefSpecs: c.Refspec,
		OverrideJSON: overrideBytes(c.Override),
	})
	return waitAndReport(task)
}

// InitCmd implements the 'init' command.
type InitCmd struct {
	Path string `arg:"" help:"Directory to initialize"`
}

func (c *InitCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnInit(c.Path)
	})
}

// AddCmd implements the 'add' command.
type AddCmd struct {
	Repo  string   `arg:"" help:"Repository directory"`
	Paths []string `arg:"" help:"Paths to stage"`
}

func (c *AddCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnAdd(c.Repo, c.Paths)
	})
}

// CommitCmd implements the 'commit' command.
type CommitCmd struct {
	Repo       string `arg:"" help:"Repository directory"`
	Message    string `short:"m" required:"" help:"Commit message"`
	Author     string `help:"Author name"`
	Email      string `help:"Author email"`
	AllowEmpty bool   `help:"Allow an empty commit"`
}

func (c *CommitCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnCommit(c.Repo, gitops.CommitOptions{
			Message: c.Message, AuthorName: c.Author, AuthorEmail: c.Email,
			AllowEmpty: c.AllowEmpty,
		})
	})
}

// BranchCmd implements the 'branch' command.
type BranchCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	Name string `arg:"" help:"Branch name"`
}

func (c *BranchCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnBranch(c.Repo, c.Name)
	})
}

// CheckoutCmd implements the 'checkout' command.
type CheckoutCmd struct {
	Repo   string `arg:"" help:"Repository directory"`
	Name   string `arg:"" help:"Branch name"`
	Create bool   `short:"b" help:"Create the branch first"`
}

func (c *CheckoutCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnCheckout(c.Repo, c.Name, c.Create)
	})
}

// TagCmd implements the 'tag' command.
type TagCmd struct {
	Repo    string `arg:"" help:"Repository directory"`
	Name    string `arg:"" help:"Tag name"`
	Message string `short:"m" help:"Annotation message (empty = lightweight tag)"`
	Tagger  string `help:"Tagger name"`
	Email   string `help:"Tagger email"`
}

func (c *TagCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnTag(c.Repo, c.Name, gitops.TagOptions{
			Message: c.Message, TaggerName: c.Tagger, TaggerEmail: c.Email,
		})
	})
}

// RemoteCmd groups the remote management subcommands.
type RemoteCmd struct {
	Add    RemoteAddCmd    `cmd:"" help:"Add a remote"`
	Set    RemoteSetCmd    `cmd:"" help:"Replace a remote's URL"`
	Remove RemoteRemoveCmd `cmd:"" help:"Remove a remote"`
	Branches RemoteBranchesCmd `cmd:"" help:"List branches advertised by a remote"`
}

type RemoteAddCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	Name string `arg:"" help:"Remote name"`
	URL  string `arg:"" help:"Remote URL"`
}

func (c *RemoteAddCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnRemoteAdd(c.Repo, c.Name, c.URL)
	})
}

type RemoteSetCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	Name string `arg:"" help:"Remote name"`
	URL  string `arg:"" help:"New remote URL"`
}

func (c *RemoteSetCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnRemoteSet(c.Repo, c.Name, c.URL)
	})
}

type RemoteRemoveCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	Name string `arg:"" help:"Remote name"`
}

func (c *RemoteRemoveCmd) Run(cli *CLI) error {
	return runLocalTask(cli, func(eng *engine) *taskregistry.Task {
		return eng.registry.SpawnRemoteRemove(c.Repo, c.Name)
	})
}

type RemoteBranchesCmd struct {
	Repo   string `arg:"" help:"Repository directory"`
	Remote string `arg:"" optional:"" help:"Remote name" default:"origin"`
}

func (c *RemoteBranchesCmd) Run(cli *CLI) error {
	names, err := gitops.RemoteBranches(context.Background(), c.Repo, c.Remote, nil)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// BatchCmd implements the 'batch' command: a workspace clone fan-out.
type BatchCmd struct {
	Dest        string   `arg:"" help:"Workspace directory"`
	URL         []string `arg:"" help:"Repository URLs"`
	Concurrency int      `short:"j" help:"Max concurrent clones" default:"4"`
}

func (c *BatchCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	clones := make([]taskregistry.CloneRequest, 0, len(c.URL))
	for _, u := range c.URL {
		name := filepath.Base(strings.TrimSuffix(u, ".git"))
		clones = append(clones, taskregistry.CloneRequest{URL: u, Dest: filepath.Join(c.Dest, name)})
	}
	task := eng.registry.SpawnWorkspaceBatch(taskregistry.BatchRequest{
		Clones: clones, MaxConcurrency: c.Concurrency,
	})
	return waitAndReport(task)
}

// BranchesCmd implements 'list-branches'.
type BranchesCmd struct {
	Repo string `arg:"" help:"Repository directory"`
}

func (c *BranchesCmd) Run(cli *CLI) error {
	names, err := gitops.ListBranches(c.Repo)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// StatusCmd implements 'status'.
type StatusCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	JSON bool   `help:"Emit machine-readable JSON"`
}

func (c *StatusCmd) Run(cli *CLI) error {
	st, err := gitops.Status(c.Repo)
	if err != nil {
		return err
	}
	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(st)
	}
	fmt.Printf("on branch %s\n", st.Branch)
	if st.Clean {
		fmt.Println("working tree clean")
		return nil
	}
	for _, f := range st.Files {
		fmt.Printf("  %s (index: %s, worktree: %s)\n", f.Path, f.Staging, f.Worktree)
	}
	return nil
}

// WorktreeCmd groups the worktree subcommands.
type WorktreeCmd struct {
	List   WorktreeListCmd   `cmd:"" help:"List worktrees"`
	Add    WorktreeAddCmd    `cmd:"" help:"Add a linked worktree"`
	Remove WorktreeRemoveCmd `cmd:"" help:"Remove a linked worktree"`
}

type WorktreeListCmd struct {
	Repo string `arg:"" help:"Repository directory"`
}

func (c *WorktreeListCmd) Run(cli *CLI) error {
	list, err := gitops.WorktreeList(c.Repo)
	if err != nil {
		return err
	}
	for _, wt := range list {
		marker := " "
		if wt.Main {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s [%s]\n", marker, wt.Name, wt.Path, wt.Branch)
	}
	return nil
}

type WorktreeAddCmd struct {
	Repo   string `arg:"" help:"Repository directory"`
	Dest   string `arg:"" help:"Worktree directory"`
	Branch string `arg:"" help:"Branch to check out"`
}

func (c *WorktreeAddCmd) Run(cli *CLI) error {
	return gitops.WorktreeAdd(c.Repo, c.Dest, c.Branch)
}

type WorktreeRemoveCmd struct {
	Repo string `arg:"" help:"Repository directory"`
	Name string `arg:"" help:"Worktree name"`
}

func (c *WorktreeRemoveCmd) Run(cli *CLI) error {
	return gitops.WorktreeRemove(c.Repo, c.Name)
}

// SoakCmd runs a clone batch under the soak aggregator and prints its
// report.
type SoakCmd struct {
	Dest        string   `arg:"" help:"Workspace directory"`
	URL         []string `arg:"" help:"Repository URLs"`
	Label       string   `help:"Run label" default:"manual"`
	DB          string   `help:"Soak event database path" default:"soak.db"`
	Baseline    string   `help:"Baseline run id for comparison"`
	Concurrency int      `short:"j" help:"Max concurrent clones" default:"4"`
}

func (c *SoakCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	store, err := eventstore.NewSQLiteStore(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []obssink.Option{}
	if c.Baseline != "" {
		opts = append(opts, obssink.WithBaseline(c.Baseline))
	}
	run := obssink.NewSoakRun(c.Label, store, eng.bus, opts...)
	ctx := context.Background()
	if err := run.Start(ctx); err != nil {
		return err
	}

	clones := make([]taskregistry.CloneRequest, 0, len(c.URL))
	for _, u := range c.URL {
		name := filepath.Base(strings.TrimSuffix(u, ".git"))
		clones = append(clones, taskregistry.CloneRequest{URL: u, Dest: filepath.Join(c.Dest, name)})
	}
	batch := eng.registry.SpawnWorkspaceBatch(taskregistry.BatchRequest{
		Clones: clones, MaxConcurrency: c.Concurrency,
	})
	batchState := batch.Wait()
	eng.registry.Wait()

	report, err := run.Stop(ctx)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Printf("run %s (%s): batch %s\n%s\n", run.ID, c.Label, batchState, out)
	if !report.Passed {
		return fmt.Errorf("soak thresholds not met: %s", strings.Join(report.FailureReasons, "; "))
	}
	return nil
}

// ServeCmd runs the daemon loop: config watch plus maintenance ticks until
// interrupted.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()

	sched, err := maintenance.New(maintenance.Options{
		Config:   eng.cfg,
		Pool:     eng.pool,
		Proxy:    eng.proxy,
		Registry: eng.registry,
		Creds:    eng.fileCreds,
	})
	if err != nil {
		return err
	}
	defer sched.Stop()

	watcher, err := config.NewWatcher(cli.Config, func(next *config.Config) {
		*eng.cfg = *next
		eng.pool.RebindHistory(next.IPPool.HistoryPath)
		slog.Info("configuration reloaded")
	})
	if err == nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if werr := watcher.Start(ctx); werr != nil {
			slog.Warn("config watcher unavailable", slog.String("error", werr.Error()))
		}
		defer func() { _ = watcher.Stop() }()
	} else {
		slog.Warn("config watcher unavailable", slog.String("error", err.Error()))
	}

	if addr := eng.cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.HTTPHandler(eng.promReg))
			if herr := http.ListenAndServe(addr, mux); herr != nil {
				slog.Warn("metrics listener stopped", slog.String("error", herr.Error()))
			}
		}()
	}

	slog.Info("gitcollabd serving", slog.String("config", cli.Config))
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	done := make(chan struct{})
	go func() {
		eng.registry.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.Warn("timed out waiting for running tasks")
	}
	return nil
}

// runLocalTask builds the engine, spawns one local task, and reports it.
func runLocalTask(cli *CLI, spawn func(*engine) *taskregistry.Task) error {
	eng, err := buildEngine(cli.Config)
	if err != nil {
		return err
	}
	defer eng.close()
	return waitAndReport(spawn(eng))
}

func overrideBytes(s string) []byte {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []byte(s)
}
