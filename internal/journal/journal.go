// Package journal is the append-only trade journal (spec component
// C6): one JSON-lines file per UTC day, rotated lazily on write.
// Grounded on the teacher's internal/storage.Storage interface and its
// console/postgres dual backend, but the primary backend here is a
// flat file rather than a database — the teacher never journals to
// disk, so the file-rotation and directory-resolution logic are new,
// written in the teacher's style (single-producer mutex, best-effort
// writes that log and continue rather than propagate).
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Record is one journal entry. Fields carries the kind-specific
// payload; TS and Kind are always present in the encoded JSON.
type Record struct {
	TS     time.Time
	Kind   string
	Fields map[string]any
}

// MarshalJSON flattens TS and Kind into the Fields map so every record
// is a single JSON object, not a nested one.
func (r Record) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		merged[k] = v
	}
	merged["ts"] = r.TS.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	merged["kind"] = r.Kind
	return json.Marshal(merged)
}

// Journal appends Records to a daily-rotated JSONL file. The Risk
// Guard's exclusive-owner invariant has an analogue here: Journal is
// written only from the strategy tick and the orchestrator's task
// loops, serialized through mu, never concurrently from two goroutines
// at once.
type Journal struct {
	dir    string
	bot    string
	logger *zap.Logger

	mu         sync.Mutex
	file       *os.File
	currentDay string
}

// New creates a Journal writing under the resolved trades directory
// for bot. The directory is created if absent; the first file opens
// lazily on the first Write.
func New(bot string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := ResolveDir(bot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trades dir: %w", err)
	}
	return &Journal{dir: dir, bot: bot, logger: logger}, nil
}

// ResolveDir implements the directory-resolution precedence: env
// TRADES_DIR, then <git-root>/TRADES/<bot>, then ./TRADES/<bot>.
func ResolveDir(bot string) string {
	if d := os.Getenv("TRADES_DIR"); d != "" {
		return d
	}
	if root, err := gitRoot(); err == nil {
		return filepath.Join(root, "TRADES", bot)
	}
	return filepath.Join(".", "TRADES", bot)
}

func gitRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .git directory found above %s", dir)
		}
		dir = parent
	}
}

// Write appends one record of kind with fields. Failures are logged
// and counted, never propagated — a broken journal must never stop the
// trading loop.
func (j *Journal) Write(kind string, fields map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	if err := j.rotateIfNeeded(now); err != nil {
		j.logger.Warn("journal-rotate-failed", zap.Error(err))
		JournalWriteErrorsTotal.Inc()
		return
	}

	b, err := json.Marshal(Record{TS: now, Kind: kind, Fields: fields})
	if err != nil {
		j.logger.Warn("journal-marshal-failed", zap.String("kind", kind), zap.Error(err))
		JournalWriteErrorsTotal.Inc()
		return
	}
	b = append(b, '\n')

	if _, err := j.file.Write(b); err != nil {
		j.logger.Warn("journal-write-failed", zap.String("kind", kind), zap.Error(err))
		JournalWriteErrorsTotal.Inc()
		return
	}
	JournalRecordsWrittenTotal.WithLabelValues(kind).Inc()
}

func (j *Journal) rotateIfNeeded(now time.Time) error {
	day := now.Format("2006-01-02")
	if day == j.currentDay && j.file != nil {
		return nil
	}
	if j.file != nil {
		j.file.Close()
	}
	path := filepath.Join(j.dir, fmt.Sprintf("trades-%s.jsonl", day))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.currentDay = day
	return nil
}

// Close flushes and closes the currently open file, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}

// The following are typed convenience wrappers for every record kind
// SPEC_FULL.md names, so callers never hand-spell the kind string.

func (j *Journal) BotStart(mode string) {
	j.Write("bot_start", map[string]any{"mode": mode})
}

func (j *Journal) AuthCheck(ok bool, detail string) {
	j.Write("auth_check", map[string]any{"ok": ok, "detail": detail})
}

func (j *Journal) StrategyCycleStart(cycle int64) {
	j.Write("strategy_cycle_start", map[string]any{"cycle": cycle})
}

func (j *Journal) DiscoveryCycle(trackedCount int) {
	j.Write("discovery_cycle", map[string]any{"tracked_count": trackedCount})
}

func (j *Journal) ForecastCycle(ticker string, probability float64) {
	j.Write("forecast_cycle", map[string]any{"ticker": ticker, "probability": probability})
}

func (j *Journal) OpportunityFound(id string, kind string, netProfitCents int64) {
	j.Write("opportunity_found", map[string]any{"id": id, "signal_kind": kind, "net_profit_cents": netProfitCents})
}

func (j *Journal) RiskRejected(id string, reason string) {
	j.Write("risk_rejected", map[string]any{"id": id, "reason": reason})
}

func (j *Journal) DecisionVeto(id string, reason string) {
	j.Write("decision_veto", map[string]any{"id": id, "reason": reason})
}

func (j *Journal) ExecutionStart(id string, legCount int) {
	j.Write("execution_start", map[string]any{"id": id, "leg_count": legCount})
}

func (j *Journal) ExecutionResult(id string, state string, realizedProfitCents int64) {
	j.Write("execution_result", map[string]any{"id": id, "state": state, "realized_profit_cents": realizedProfitCents})
}

func (j *Journal) OrderPlaced(orderID, ticker string, count int64) {
	j.Write("order_placed", map[string]any{"order_id": orderID, "ticker": ticker, "count": count})
}

func (j *Journal) OrderFailed(ticker string, reason string) {
	j.Write("order_failed", map[string]any{"ticker": ticker, "reason": reason})
}

func (j *Journal) RiskKillSwitch(reason string) {
	j.Write("risk_kill_switch", map[string]any{"reason": reason})
}

func (j *Journal) Heartbeat(trackedCount, cachedCount int, cumulativeCycles int64) {
	j.Write("heartbeat", map[string]any{
		"tracked_count":     trackedCount,
		"cached_count":      cachedCount,
		"cumulative_cycles": cumulativeCycles,
	})
}

func (j *Journal) BotShutdown(reason string) {
	j.Write("bot_shutdown", map[string]any{"reason": reason})
}
