package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tangram.systems/checkin/internal/catalog"
	checkinconfig "tangram.systems/checkin/internal/config"
	"tangram.systems/checkin/internal/engine"
	"tangram.systems/checkin/internal/graph"
	"tangram.systems/checkin/internal/lockfile"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/resolve"
	"tangram.systems/checkin/internal/store"
	"tangram.systems/checkin/internal/watch"
)

func runCheckIn(cmd *cobra.Command, args []string) error {
	entryPath := "."
	if len(args) == 1 {
		entryPath = args[0]
	}

	run, cfg, err := buildRunner(cmd, entryPath)
	if err != nil {
		return err
	}

	if mustFlagBool(cmd, "watch") {
		return runWatch(entryPath, cfg.WatchTTL, run)
	}

	result, err := run(context.Background())
	if err != nil {
		return err
	}
	reportResult(result)
	return nil
}

// buildRunner parses every persistent flag into the engine's Options and
// returns a closure performing one check-in, so the one-shot and --watch
// paths share identical configuration.
func buildRunner(cmd *cobra.Command, entryPath string) (func(context.Context) (*engine.Result, error), checkinConfigResult, error) {
	cfg, err := checkinconfig.Load(v, v.GetString("configFile"))
	if err != nil {
		return nil, checkinConfigResult{}, fmt.Errorf("checkin: loading config: %w", err)
	}

	medium, err := lockfile.ParseMedium(mustFlagString(cmd, "lock"))
	if err != nil {
		return nil, checkinConfigResult{}, usageError{err}
	}

	update := map[string]bool{}
	for _, name := range mustFlagStringArray(cmd, "update") {
		update[name] = true
	}

	ttl := cfg.TagCacheTTL
	if seconds := mustFlagInt(cmd, "ttl"); seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if mustFlagBool(cmd, "no-cache-references") {
		ttl = 0
	}

	flags := resolve.Flags{
		Locked:               mustFlagBool(cmd, "locked"),
		NoSolve:              mustFlagBool(cmd, "no-solve"),
		UnsolvedDependencies: mustFlagBool(cmd, "unsolved-dependencies"),
		Update:               update,
		Deterministic:        mustFlagBool(cmd, "deterministic"),
		TTL:                  ttl,
	}

	st, err := store.NewLocal(cfg.StoreDir)
	if err != nil {
		return nil, checkinConfigResult{}, fmt.Errorf("checkin: opening store %q: %w", cfg.StoreDir, err)
	}

	var fetcher catalog.Fetcher = catalog.NullFetcher{}
	if cfg.RegistryURL != "" {
		fetcher = catalog.NewHTTPFetcher(cfg.RegistryURL, cfg.CacheDir)
	}
	client := catalog.NewCachingClient(fetcher, cfg.TagCacheTTL)

	opts := engine.Options{
		EntryPath:     entryPath,
		Store:         st,
		Catalog:       client,
		Config:        cfg,
		Flags:         flags,
		LockMedium:    medium,
		Destructive:   mustFlagBool(cmd, "destructive"),
		DisableIgnore: !mustFlagBool(cmd, "ignore"),
		IDLookup:      storeIDLookup(st),
	}

	eng := engine.New()
	run := func(ctx context.Context) (*engine.Result, error) {
		return eng.CheckIn(ctx, opts)
	}
	return run, checkinConfigResult{WatchTTL: cfg.WatchTTL}, nil
}

// checkinConfigResult carries the subset of config a caller of buildRunner
// needs after construction, without re-exposing the whole engine.Options.
type checkinConfigResult struct {
	WatchTTL time.Duration
}

// runWatch runs one check-in immediately, then keeps re-running it on every
// debounced content change under entryPath until interrupted.
func runWatch(entryPath string, ttl time.Duration, run func(context.Context) (*engine.Result, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx)
	if err != nil {
		return err
	}
	reportResult(result)

	w, err := watch.New(entryPath, watch.Options{TTL: ttl})
	if err != nil {
		return fmt.Errorf("checkin: starting watcher: %w", err)
	}
	defer w.Close()

	pterm.Info.Printfln("watching %s for changes", entryPath)
	return w.Run(ctx, func() {
		result, err := run(ctx)
		if err != nil {
			pterm.Error.Printfln("%v", err)
			return
		}
		reportResult(result)
	})
}

// reportResult prints a CheckIn outcome the way bennypowers-cem's validate
// command reports its own findings: pterm.Success/Warning for the summary
// line, one pterm.Warning per diagnostic.
func reportResult(result *engine.Result) {
	if result.Shared {
		pterm.Info.Printfln("check-in shared with an in-flight run for the same content")
	}
	switch {
	case result.ArtifactID != "":
		pterm.Success.Printfln("checked in %s", result.ArtifactID)
	case result.Member != nil:
		pterm.Success.Printfln("checked in as member %d of graph %s", result.Member.Index, result.Member.GraphID)
	}
	if result.LockWritten {
		pterm.Info.Printfln("lock updated")
	}
	for _, d := range result.Diagnostics {
		pterm.Warning.Printfln("%s", d.Error())
	}
}

// storeIDLookup resolves an id-reference against the configured Store: an
// id reference names an object already present in the store directly, with
// no catalog or resolver involvement.
func storeIDLookup(st store.Store) graph.IDLookup {
	return func(ctx context.Context, idText string) (objectid.ID, bool, error) {
		id := objectid.ID(idText)
		ok, err := st.Exists(ctx, id)
		if err != nil || !ok {
			return "", false, err
		}
		return id, true, nil
	}
}

func mustFlagBool(cmd *cobra.Command, name string) bool {
	b, _ := cmd.Flags().GetBool(name)
	return b
}

func mustFlagString(cmd *cobra.Command, name string) string {
	s, _ := cmd.Flags().GetString(name)
	return s
}

func mustFlagInt(cmd *cobra.Command, name string) int {
	i, _ := cmd.Flags().GetInt(name)
	return i
}

func mustFlagStringArray(cmd *cobra.Command, name string) []string {
	s, _ := cmd.Flags().GetStringArray(name)
	return s
}
