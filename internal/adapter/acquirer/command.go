package acquirer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cwygoda/mixpack/internal/config"
	"github.com/cwygoda/mixpack/internal/domain"
)

var (
	// ErrNoLocator is recorded for tracks without a download URL.
	ErrNoLocator = errors.New("track has no download locator")
	// ErrNoFiles is recorded when the command exits cleanly but leaves nothing behind.
	ErrNoFiles = errors.New("acquisition produced no files")
	// ErrTimedOut is recorded when the command outlives its timeout.
	ErrTimedOut = errors.New("acquisition timed out")
)

const (
	configPattern = "acquire-*.json"
	maxLogOutput  = 2048
	waitDelay     = 5 * time.Second
)

// CommandAcquirer runs an external download command for matching locators.
type CommandAcquirer struct {
	name        string
	pattern     *regexp.Regexp
	command     string
	args        []string
	module      string
	quality     string
	filename    string
	timeout     time.Duration
	usernameEnv string
	passwordEnv string
	logger      *slog.Logger
}

var _ domain.Acquirer = (*CommandAcquirer)(nil)

// NewCommandAcquirer creates an acquirer from config.
func NewCommandAcquirer(ac config.AcquirerConfig, logger *slog.Logger) (*CommandAcquirer, error) {
	if err := ac.Validate(); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(ac.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", ac.Pattern, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CommandAcquirer{
		name:        ac.Name,
		pattern:     re,
		command:     ac.Command,
		args:        ac.Args,
		module:      ac.Module,
		quality:     ac.Quality,
		filename:    ac.Filename,
		timeout:     ac.Timeout.Duration,
		usernameEnv: ac.UsernameEnv,
		passwordEnv: ac.PasswordEnv,
		logger:      logger.With("acquirer", ac.Name),
	}, nil
}

func (a *CommandAcquirer) Name() string {
	return a.name
}

func (a *CommandAcquirer) Match(locator string) bool {
	return a.pattern.MatchString(locator)
}

// Acquire downloads item into dir. It never returns an error; failures are
// described by the Outcome.
func (a *CommandAcquirer) Acquire(ctx context.Context, item domain.TrackItem, dir string) domain.Outcome {
	out := domain.Outcome{Label: item.Label()}
	locator := item.Locator()
	if locator == "" {
		out.Err = ErrNoLocator
		return out
	}
	logger := a.logger.With("track", out.Label)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		out.Err = fmt.Errorf("resolve download dir: %w", err)
		return out
	}

	cfgPath, err := a.writeConfig(absDir)
	if err != nil {
		out.Err = err
		return out
	}
	defer os.Remove(cfgPath)

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.command, a.expandArgs(cfgPath, locator)...)
	cmd.Dir = absDir
	cmd.WaitDelay = waitDelay

	logger.Info("acquiring track", "locator", locator)
	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("acquisition timed out", "timeout", a.timeout)
		out.TimedOut = true
		out.Err = ErrTimedOut
		return out
	}
	if err != nil {
		logger.Warn("acquisition failed", "error", err, "output", truncate(output))
		out.Err = fmt.Errorf("%s failed: %w", a.command, err)
		return out
	}

	files, err := listFiles(absDir)
	if err != nil {
		out.Err = fmt.Errorf("list downloaded files: %w", err)
		return out
	}
	if len(files) == 0 {
		logger.Warn("acquisition produced no files", "output", truncate(output))
		out.Err = ErrNoFiles
		return out
	}

	logger.Info("track acquired", "files", files, "duration", elapsed)
	out.Success = true
	out.Files = files
	return out
}

// expandArgs substitutes {config} and {url} placeholders.
func (a *CommandAcquirer) expandArgs(cfgPath, locator string) []string {
	r := strings.NewReplacer("{config}", cfgPath, "{url}", locator)
	args := make([]string, len(a.args))
	for i, arg := range a.args {
		args[i] = r.Replace(arg)
	}
	return args
}

// writeConfig writes the tool's config artifact, with credentials, into dir.
func (a *CommandAcquirer) writeConfig(dir string) (string, error) {
	doc := map[string]any{
		"global": map[string]string{
			"module":   a.module,
			"quality":  a.quality,
			"output":   dir,
			"filename": a.filename,
		},
		a.module: map[string]string{
			"username": os.Getenv(a.usernameEnv),
			"password": os.Getenv(a.passwordEnv),
		},
	}

	f, err := os.CreateTemp(dir, configPattern)
	if err != nil {
		return "", fmt.Errorf("create acquisition config: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write acquisition config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close acquisition config: %w", err)
	}
	return f.Name(), nil
}

// listFiles returns slash-separated paths of regular files below dir,
// config artifacts excluded.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxLogOutput {
		return s[:maxLogOutput] + "..."
	}
	return s
}
