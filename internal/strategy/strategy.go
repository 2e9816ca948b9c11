// Package strategy defines the interface all snowbanker trading strategies
// implement, plus the shared base they build on.
package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"snowbanker/internal/api"
	"snowbanker/internal/logger"
	"snowbanker/internal/tradelog"
)

// LogFileName is the per-strategy log file kept in the working directory.
const LogFileName = "log.txt"

// Strategy is one trading strategy. Init prepares its working directory and
// any strategy-specific configuration; Tick runs one decision cycle.
type Strategy interface {
	Name() string
	Init(ctx context.Context, workDir, configPath string) error
	Tick(ctx context.Context) error
}

// Deps carries what every strategy needs to operate.
type Deps struct {
	Trade      *api.TradeAPI
	HistoryCap int
}

// Factory builds a named strategy instance.
type Factory func(name string, deps Deps) Strategy

var registry = map[string]Factory{}

// Register adds a strategy factory under a key. Called from strategy package
// init functions.
func Register(key string, f Factory) {
	registry[key] = f
}

// Lookup returns the factory registered under key.
func Lookup(key string) (Factory, bool) {
	f, ok := registry[strings.ToLower(key)]
	return f, ok
}

// Names returns the sorted registry keys, for help output.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Base carries the state shared by all strategies: a name, the trade API,
// a working directory with a log file, and an order log.
type Base struct {
	name    string
	deps    Deps
	WorkDir string
	Orders  *tradelog.Log

	logPath string
	now     func() time.Time
}

// NewBase creates the shared strategy base.
func NewBase(name string, deps Deps) Base {
	return Base{name: name, deps: deps, now: time.Now}
}

func (b *Base) Name() string       { return b.name }
func (b *Base) API() *api.TradeAPI { return b.deps.Trade }
func (b *Base) HistoryCap() int    { return b.deps.HistoryCap }

// Init creates the working directory and starts a fresh log file. Strategies
// override Init and call this first.
func (b *Base) Init(ctx context.Context, workDir string) error {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return err
	}
	b.WorkDir = abs
	if err := os.MkdirAll(b.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir %s: %w", b.WorkDir, err)
	}

	b.logPath = filepath.Join(b.WorkDir, LogFileName)
	b.Orders = tradelog.New(b.WorkDir)

	if err := os.WriteFile(b.logPath, nil, 0o644); err != nil {
		return fmt.Errorf("failed to create log file %s: %w", b.logPath, err)
	}
	b.Log(ctx, "initialized")
	return nil
}

// Log appends a timestamped line to the strategy's log file and mirrors it
// to the structured logger.
func (b *Base) Log(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s %s] %s\n",
		b.name, b.now().Format("2006-01-02 15:04:05"), msg)

	f, err := os.OpenFile(b.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = f.WriteString(line)
		_ = f.Close()
	}
	logger.Info(ctx, msg, "strategy", b.name)
}
