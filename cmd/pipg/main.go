package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/finder"
	"github.com/bilusteknoloji/pipg/internal/graph"
	"github.com/bilusteknoloji/pipg/internal/installer"
	"github.com/bilusteknoloji/pipg/internal/lockfile"
	"github.com/bilusteknoloji/pipg/internal/pypi"
	"github.com/bilusteknoloji/pipg/internal/pypiname"
	"github.com/bilusteknoloji/pipg/internal/python"
	"github.com/bilusteknoloji/pipg/internal/requirement"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// defaultIndexURL is the simple index pipg resolves and fetches
// against when the caller doesn't configure one.
const defaultIndexURL = "https://pypi.org/simple"

var version = "0.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "pipg",
		Short:         "A fast Python package installer",
		Long:          "pipg is a drop-in replacement for pip install that downloads packages concurrently.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	installCmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Install Python packages",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runInstall,
	}

	installCmd.Flags().StringP("requirements", "r", "", "Install from requirements file")
	installCmd.Flags().IntP("jobs", "j", 0, "Max concurrent downloads (default: GOMAXPROCS)")
	installCmd.Flags().String("python", "python3", "Python binary to use")
	installCmd.Flags().String("target", "", "Target directory (default: auto-detect site-packages)")
	installCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	installCmd.Flags().Bool("dry-run", false, "Show the plan without downloading or installing")
	installCmd.Flags().Bool("no-deps", false, "Skip dependencies, install only specified packages")
	installCmd.Flags().Bool("lock-only", false, "Resolve and write pipg.lock without downloading or installing")
	installCmd.Flags().String("lockfile", "pipg.lock", "Lockfile path for --lock-only")

	resolveCmd := &cobra.Command{
		Use:   "resolve [packages...]",
		Short: "Resolve packages and print the dependency tree without installing",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runResolve,
	}

	resolveCmd.Flags().StringP("requirements", "r", "", "Resolve from requirements file")
	resolveCmd.Flags().String("python", "python3", "Python binary to use")
	resolveCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	resolveCmd.Flags().Bool("no-deps", false, "Skip dependencies, resolve only specified packages")

	lockCmd := &cobra.Command{
		Use:   "lock [packages...]",
		Short: "Resolve packages and write a pipg.lock file",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runLock,
	}

	lockCmd.Flags().StringP("requirements", "r", "", "Resolve from requirements file")
	lockCmd.Flags().String("python", "python3", "Python binary to use")
	lockCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	lockCmd.Flags().Bool("no-deps", false, "Skip dependencies, resolve only specified packages")
	lockCmd.Flags().String("lockfile", "pipg.lock", "Output lockfile path")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the wheel cache",
	}

	cacheInspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print cache location and size",
		Args:  cobra.NoArgs,
		RunE:  runCacheInspect,
	}

	cacheClearCmd := &cobra.Command{
		Use:   "clear [packages...]",
		Short: "Remove cached entries (all of them, or only the named packages)",
		Args:  cobra.ArbitraryArgs,
		RunE:  runCacheClear,
	}

	cachePruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale temp and lock files left by interrupted writes",
		Args:  cobra.NoArgs,
		RunE:  runCachePrune,
	}

	cacheCmd.AddCommand(cacheInspectCmd, cacheClearCmd, cachePruneCmd)

	rootCmd.AddCommand(installCmd, resolveCmd, lockCmd, cacheCmd)

	return rootCmd.Execute()
}

// installFlags holds parsed CLI flags for the install command.
type installFlags struct {
	reqFile      string
	jobs         int
	pythonBin    string
	targetDir    string
	verbose      bool
	dryRun       bool
	noDeps       bool
	lockOnly     bool
	lockfilePath string
}

func parseInstallFlags(cmd *cobra.Command) installFlags {
	reqFile, _ := cmd.Flags().GetString("requirements")
	jobs, _ := cmd.Flags().GetInt("jobs")
	pythonBin, _ := cmd.Flags().GetString("python")
	targetDir, _ := cmd.Flags().GetString("target")
	verbose, _ := cmd.Flags().GetBool("verbose")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noDeps, _ := cmd.Flags().GetBool("no-deps")
	lockOnly, _ := cmd.Flags().GetBool("lock-only")
	lockfilePath, _ := cmd.Flags().GetString("lockfile")

	return installFlags{reqFile, jobs, pythonBin, targetDir, verbose, dryRun, noDeps, lockOnly, lockfilePath}
}

func runInstall(cmd *cobra.Command, args []string) error {
	start := time.Now()
	flags := parseInstallFlags(cmd)

	requirements, err := collectRequirements(args, flags.reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return fmt.Errorf("no packages specified; use 'pipg install <pkg>' or 'pipg install -r requirements.txt'")
	}

	logger := newLogger(flags.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := detectEnv(ctx, flags.pythonBin, flags.targetDir, logger)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		logger.Debug("cache unavailable, continuing without cache", slog.String("error", err.Error()))
	}

	registry := newRegistry(httpClient, wheelCache, logger)
	distSvc := distribution.New(wheelCache, distribution.WithHTTPClient(httpClient), distribution.WithLogger(logger))

	resolved, depGraph, err := resolveDeps(ctx, requirements, registry, distSvc, flags.noDeps, env, logger)
	if err != nil {
		return err
	}

	if flags.lockOnly {
		return writeLockfile(flags.lockfilePath, resolved, depGraph)
	}

	if flags.dryRun {
		printDryRun(resolved)

		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if flags.jobs > 0 {
		workers = flags.jobs
	}

	fmt.Printf("\nFetching %d packages (%d workers)...\n", len(resolved), workers)

	downloads, err := fetchPackages(ctx, resolved, distSvc, workers)
	if err != nil {
		return err
	}

	printDownloadResults(downloads)

	if flags.targetDir != "" {
		fmt.Println("\nUnpacking...")

		for _, dl := range downloads {
			if err := distSvc.Unpack(ctx, dl.FilePath, env.SitePackages); err != nil {
				return fmt.Errorf("unpacking %s: %w", dl.Name, err)
			}
		}

		fmt.Printf("  ✓ %d packages unpacked into %s\n", len(downloads), env.SitePackages)
	} else {
		fmt.Println("\nInstalling...")

		inst := installer.New(env, installer.WithLogger(logger))
		if err := inst.Install(ctx, downloads); err != nil {
			return fmt.Errorf("installing packages: %w", err)
		}

		fmt.Printf("  ✓ %d packages installed\n", len(downloads))
	}

	fmt.Printf("\nDone in %.1fs\n", time.Since(start).Seconds())

	return nil
}

// runResolve resolves the requested packages and prints the dependency
// tree, without touching the network beyond metadata lookups.
func runResolve(cmd *cobra.Command, args []string) error {
	reqFile, _ := cmd.Flags().GetString("requirements")
	pythonBin, _ := cmd.Flags().GetString("python")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noDeps, _ := cmd.Flags().GetBool("no-deps")

	requirements, err := collectRequirements(args, reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return fmt.Errorf("no packages specified; use 'pipg resolve <pkg>' or 'pipg resolve -r requirements.txt'")
	}

	logger := newLogger(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := detectEnv(ctx, pythonBin, "", logger)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		logger.Debug("cache unavailable, continuing without cache", slog.String("error", err.Error()))
	}

	registry := newRegistry(httpClient, wheelCache, logger)
	distSvc := distribution.New(wheelCache, distribution.WithHTTPClient(httpClient), distribution.WithLogger(logger))

	_, _, err = resolveDeps(ctx, requirements, registry, distSvc, noDeps, env, logger)

	return err
}

// runLock resolves the requested packages and writes a lockfile,
// without downloading or installing anything.
func runLock(cmd *cobra.Command, args []string) error {
	reqFile, _ := cmd.Flags().GetString("requirements")
	pythonBin, _ := cmd.Flags().GetString("python")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noDeps, _ := cmd.Flags().GetBool("no-deps")
	lockfilePath, _ := cmd.Flags().GetString("lockfile")

	requirements, err := collectRequirements(args, reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return fmt.Errorf("no packages specified; use 'pipg lock <pkg>' or 'pipg lock -r requirements.txt'")
	}

	logger := newLogger(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := detectEnv(ctx, pythonBin, "", logger)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		logger.Debug("cache unavailable, continuing without cache", slog.String("error", err.Error()))
	}

	registry := newRegistry(httpClient, wheelCache, logger)
	distSvc := distribution.New(wheelCache, distribution.WithHTTPClient(httpClient), distribution.WithLogger(logger))

	resolved, depGraph, err := resolveDeps(ctx, requirements, registry, distSvc, noDeps, env, logger)
	if err != nil {
		return err
	}

	return writeLockfile(lockfilePath, resolved, depGraph)
}

// newRegistry builds the simple-index client shared by resolve and
// fetch, caching project pages on disk (revalidated against the
// origin) when a cache is available.
func newRegistry(httpClient *http.Client, wheelCache *cache.Manager, logger *slog.Logger) *pypi.Service {
	opts := []pypi.Option{pypi.WithHTTPClient(httpClient), pypi.WithLogger(logger)}
	if wheelCache != nil {
		opts = append(opts, pypi.WithCache(wheelCache))
	}

	return pypi.New(opts...)
}

// writeLockfile renders resolved packages as a lockfile.Lockfile and
// writes it to path. depGraph supplies each package's source kind;
// packages the graph doesn't know about (shouldn't happen) default to
// "registry".
func writeLockfile(path string, resolved []resolver.ResolvedPackage, depGraph *graph.Graph) error {
	sources := make(map[string]string, len(depGraph.Nodes))
	for _, n := range depGraph.Nodes {
		sources[n.Name] = n.Source
	}

	lf := lockfile.Lockfile{Version: lockfile.FormatVersion}

	for _, pkg := range resolved {
		source := sources[pkg.Name]
		if source == "" {
			source = "registry"
		}

		lf.Packages = append(lf.Packages, lockfile.PackageEntry{
			Name:         pkg.Name,
			Version:      pkg.Version,
			Source:       source,
			Dependencies: pkg.Dependencies,
			Extras:       pkg.Extras,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating lockfile %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := lockfile.Encode(f, lf); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}

	fmt.Printf("Wrote %s (%d packages)\n", path, len(lf.Packages))

	return nil
}

// runCacheInspect prints the cache root and its current on-disk size.
func runCacheInspect(cmd *cobra.Command, _ []string) error {
	logger := newLogger(false)

	mgr, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	size, err := mgr.Size()
	if err != nil {
		return fmt.Errorf("measuring cache: %w", err)
	}

	fmt.Printf("cache directory: %s\n", mgr.Dir())
	fmt.Printf("cache size:      %s\n", formatSize(size))

	return nil
}

// runCacheClear removes cached entries. With no arguments it clears
// the entire cache; given package names it clears only those.
func runCacheClear(cmd *cobra.Command, args []string) error {
	logger := newLogger(false)

	mgr, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	if len(args) == 0 {
		if err := os.RemoveAll(mgr.Dir()); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}

		fmt.Printf("cleared %s\n", mgr.Dir())

		return nil
	}

	for _, pkg := range args {
		files, dirs, bytesFreed, err := mgr.Clear(pypiname.Normalize(pkg))
		if err != nil {
			return fmt.Errorf("clearing %s from cache: %w", pkg, err)
		}

		fmt.Printf("%s: removed %d files, %d directories, freed %s\n", pkg, files, dirs, formatSize(bytesFreed))
	}

	return nil
}

// runCachePrune sweeps leftover .tmp/.lock files and empty shard
// directories from the cache.
func runCachePrune(cmd *cobra.Command, _ []string) error {
	logger := newLogger(false)

	mgr, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	removed, err := mgr.Prune()
	if err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}

	fmt.Printf("removed %d stale entries\n", removed)

	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func detectEnv(ctx context.Context, pythonBin, targetDir string, logger *slog.Logger) (*python.Environment, error) {
	pyDetector := python.New(python.WithPythonBin(pythonBin))

	env, err := pyDetector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting Python environment: %w", err)
	}

	if targetDir != "" {
		absTarget, err := filepath.Abs(targetDir)
		if err != nil {
			return nil, fmt.Errorf("resolving target directory: %w", err)
		}

		env.SitePackages = absTarget
	}

	logger.Debug("detected Python environment",
		slog.String("prefix", env.Prefix),
		slog.String("site-packages", env.SitePackages),
		slog.String("platform", env.PlatformTag),
		slog.String("version", env.PythonVersion),
		slog.Bool("venv", env.IsVirtualEnv),
	)

	return env, nil
}

func resolveDeps(ctx context.Context, requirements []string, registry *pypi.Service, distSvc distribution.Pipeline, noDeps bool, env *python.Environment, logger *slog.Logger) ([]resolver.ResolvedPackage, *graph.Graph, error) {
	fmt.Println("Resolving dependencies...")

	markerEnv := buildMarkerEnv(env)

	resolverSvc := resolver.New(registry, distSvc,
		resolver.WithNoDeps(noDeps),
		resolver.WithMarkerEnv(markerEnv),
		resolver.WithLogger(logger),
		resolver.WithIndexURL(defaultIndexURL),
		resolver.WithCompatTags(buildCompatTags(env)),
	)

	resolved, depGraph, err := resolverSvc.ResolveGraph(ctx, requirements)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving dependencies: %w", err)
	}

	resolvedMap := make(map[string]resolver.ResolvedPackage, len(resolved))
	for _, pkg := range resolved {
		resolvedMap[pkg.Name] = pkg
	}

	rootNames := make([]string, 0, len(requirements))
	for _, r := range requirements {
		req, err := requirement.Parse(r)
		if err != nil {
			rootNames = append(rootNames, pypiname.Normalize(r))

			continue
		}

		rootNames = append(rootNames, req.Name)
	}

	printDependencyTree(rootNames, resolvedMap)

	return resolved, depGraph, nil
}

func printDryRun(resolved []resolver.ResolvedPackage) {
	fmt.Printf("\nWould fetch %d packages:\n", len(resolved))

	for _, pkg := range resolved {
		fmt.Printf("  %s (%s)\n", pkg.Distribution, pkg.Distribution.Kind.String())
	}

	fmt.Println("\nDry run, no changes made.")
}

func printDownloadResults(downloads []installer.Download) {
	for _, dl := range downloads {
		fmt.Printf("  ✓ %s (%s)\n", filepath.Base(dl.FilePath), formatSize(dl.Size))
	}
}

// fetchPackages fetches (and, for sdist-only candidates, builds) every
// resolved package's chosen distribution concurrently through distSvc,
// bounded to workers in flight at once.
func fetchPackages(ctx context.Context, resolved []resolver.ResolvedPackage, distSvc distribution.Pipeline, workers int) ([]installer.Download, error) {
	type result struct {
		dl  installer.Download
		err error
	}

	sem := make(chan struct{}, max(workers, 1))
	results := make([]result, len(resolved))

	var wg sync.WaitGroup

	for i, pkg := range resolved {
		wg.Add(1)

		go func(i int, pkg resolver.ResolvedPackage) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			dl, err := fetchOne(ctx, pkg, distSvc)
			results[i] = result{dl: dl, err: err}
		}(i, pkg)
	}

	wg.Wait()

	downloads := make([]installer.Download, 0, len(results))

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}

		downloads = append(downloads, r.dl)
	}

	return downloads, nil
}

// fetchOne fetches a single resolved package's distribution, building
// it first if it's an sdist, VCS checkout, or local directory.
func fetchOne(ctx context.Context, pkg resolver.ResolvedPackage, distSvc distribution.Pipeline) (installer.Download, error) {
	d := pkg.Distribution

	path, err := distSvc.Fetch(ctx, d)
	if err != nil {
		return installer.Download{}, fmt.Errorf("fetching %s %s: %w", pkg.Name, pkg.Version, err)
	}

	if d.IsBuildRequired() {
		wheelPath, err := distSvc.Build(ctx, path, d.Subdirectory)
		if err != nil {
			return installer.Download{}, fmt.Errorf("building %s %s: %w", pkg.Name, pkg.Version, err)
		}

		path = wheelPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return installer.Download{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return installer.Download{
		Name:     pkg.Name,
		Version:  pkg.Version,
		FilePath: path,
		Size:     info.Size(),
	}, nil
}

// collectRequirements merges CLI args and requirements file entries.
func collectRequirements(args []string, reqFile string) ([]string, error) {
	var requirements []string

	requirements = append(requirements, args...)

	if reqFile != "" {
		fileReqs, err := parseRequirementsFile(reqFile)
		if err != nil {
			return nil, err
		}

		requirements = append(requirements, fileReqs...)
	}

	return requirements, nil
}

// parseRequirementsFile reads a pip-compatible requirements file.
// Skips comments, empty lines, and pip options (lines starting with -).
func parseRequirementsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var reqs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Strip inline comments.
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		// Skip empty lines and pip options (e.g., --index-url, -e, -c).
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}

		reqs = append(reqs, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements file %s: %w", path, err)
	}

	return reqs, nil
}

// buildMarkerEnv creates a PEP 508 marker environment from the detected Python env.
func buildMarkerEnv(env *python.Environment) resolver.MarkerEnv {
	pyVer := formatPythonVersion(env.PythonVersion)

	var sysPlatform, osName string

	switch {
	case strings.HasPrefix(env.PlatformTag, "macosx"):
		sysPlatform = "darwin"
		osName = "posix"
	case strings.HasPrefix(env.PlatformTag, "linux"):
		sysPlatform = "linux"
		osName = "posix"
	default:
		sysPlatform = "linux"
		osName = "posix"
	}

	return resolver.MarkerEnv{
		PythonVersion: pyVer,
		SysPlatform:   sysPlatform,
		OsName:        osName,
	}
}

// formatPythonVersion converts a compact interpreter version like "312"
// to the dotted form PEP 508 markers compare against ("3.12").
func formatPythonVersion(v string) string {
	if len(v) >= 2 {
		return v[:1] + "." + v[1:]
	}

	return v
}

// buildCompatTags generates PEP 425 compatible wheel tags ordered by priority.
func buildCompatTags(env *python.Environment) []finder.WheelTag {
	pyVer := env.PythonVersion                 // e.g., "312"
	platform := wheelPlatform(env.PlatformTag) // e.g., "macosx_14_0_arm64"
	cp := "cp" + pyVer                         // e.g., "cp312"
	pyMajor := "py" + pyVer[:1]                // e.g., "py3"

	var tags []finder.WheelTag

	platforms := expandPlatform(platform)

	// Native CPython + platform.
	for _, plat := range platforms {
		tags = append(tags, finder.WheelTag{Python: cp, ABI: cp, Platform: plat})
	}

	// Stable ABI + platform.
	for _, plat := range platforms {
		tags = append(tags, finder.WheelTag{Python: cp, ABI: "abi3", Platform: plat})
	}

	// CPython, no ABI, specific platform.
	for _, plat := range platforms {
		tags = append(tags, finder.WheelTag{Python: cp, ABI: "none", Platform: plat})
	}

	// Pure Python, specific platform.
	for _, plat := range platforms {
		tags = append(tags, finder.WheelTag{Python: pyMajor, ABI: "none", Platform: plat})
	}

	// Universal (any platform).
	tags = append(tags, finder.WheelTag{Python: cp, ABI: "none", Platform: "any"})
	tags = append(tags, finder.WheelTag{Python: pyMajor, ABI: "none", Platform: "any"})

	return tags
}

// expandPlatform expands a platform tag into a priority-ordered list including
// manylinux variants (Linux) and lower macOS version variants.
func expandPlatform(platform string) []string {
	platforms := []string{platform}

	if strings.HasPrefix(platform, "linux_") {
		arch := strings.TrimPrefix(platform, "linux_")

		for _, ml := range []string{
			"manylinux_2_35", "manylinux_2_34", "manylinux_2_31",
			"manylinux_2_28", "manylinux_2_17", "manylinux2014",
		} {
			platforms = append(platforms, ml+"_"+arch)
		}
	}

	if strings.HasPrefix(platform, "macosx_") {
		parts := strings.SplitN(platform, "_", 4) // macosx, major, minor, arch
		if len(parts) == 4 {
			arch := parts[3]
			major, _ := strconv.Atoi(parts[1])

			// Universal2 for current version.
			platforms = append(platforms,
				fmt.Sprintf("macosx_%s_%s_universal2", parts[1], parts[2]),
			)

			// Lower macOS versions (arm64 starts at 11, x86_64 down to 10.9).
			minMajor := 10
			if arch == "arm64" {
				minMajor = 11
			}

			for v := major - 1; v >= minMajor; v-- {
				minor := "0"
				if v == 10 {
					minor = "9"
				}

				platforms = append(platforms,
					fmt.Sprintf("macosx_%d_%s_%s", v, minor, arch),
					fmt.Sprintf("macosx_%d_%s_universal2", v, minor),
				)
			}
		}
	}

	return platforms
}

// wheelPlatform converts a sysconfig platform tag to wheel format.
// "macosx-14.0-arm64" → "macosx_14_0_arm64"
func wheelPlatform(sysTag string) string {
	s := strings.ReplaceAll(sysTag, "-", "_")

	return strings.ReplaceAll(s, ".", "_")
}

// printDependencyTree prints the resolved packages as a dependency tree.
func printDependencyTree(roots []string, resolved map[string]resolver.ResolvedPackage) {
	visited := make(map[string]bool)

	for _, root := range roots {
		pkg, ok := resolved[root]
		if !ok {
			continue
		}

		fmt.Printf("  %s %s\n", pkg.Name, pkg.Version)

		visited[root] = true

		printSubTree(pkg.Dependencies, resolved, "  ", visited)
	}
}

func printSubTree(deps []string, resolved map[string]resolver.ResolvedPackage, prefix string, visited map[string]bool) {
	for i, depName := range deps {
		pkg, ok := resolved[depName]
		if !ok {
			continue
		}

		isLast := i == len(deps)-1

		connector := "├── "
		childPrefix := "│   "

		if isLast {
			connector = "└── "
			childPrefix = "    "
		}

		fmt.Printf("%s%s%s %s\n", prefix, connector, pkg.Name, pkg.Version)

		if !visited[depName] && len(pkg.Dependencies) > 0 {
			visited[depName] = true
			printSubTree(pkg.Dependencies, resolved, prefix+childPrefix, visited)
		}
	}
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%d KB", bytes/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
