package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const defaultInvokeTimeout = 10 * time.Minute

// Request — параметры вызова внешнего агента.
type Request struct {
	// SessionID — ключ сессии агент-процесса. Вызовы с одним
	// session id в течение дня делят контекст.
	SessionID string

	// Message — сообщение (задание) для агента.
	Message string
}

// Invoker — абстракция внешнего агент-процесса.
//
// Возвращает сырой вывод процесса; разбор — забота ParseOutput.
type Invoker interface {
	Invoke(ctx context.Context, agentID string, req Request) (string, error)
}

// SessionKiller — опциональная способность Invoker'а убивать сессии.
// Используется kill switch'ем и таймаут-энфорсментом.
type SessionKiller interface {
	StopSession(sessionID string) error
	StopAll() int
}

// DailySessionID строит per-worker-per-day идентификатор сессии,
// например "pipeline-jake-lead-scout-2026-08-31".
func DailySessionID(prefix, agentID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, agentID, now.Format("2006-01-02"))
}

// SubprocessInvoker запускает внешний агент-бинарь как подпроцесс.
//
// Команда: <binary> agent --agent <id> --local --session-id <sid>
// --message <msg> --json. Ненулевой код выхода — ошибка вызова.
// По таймауту процесс убивается, run помечается failed вызывающим.
type SubprocessInvoker struct {
	binary  string
	workdir string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*exec.Cmd
}

// SubprocessConfig — конфигурация SubprocessInvoker.
type SubprocessConfig struct {
	// Binary — путь к агент-бинарю (например, "openclaw").
	Binary string

	// Workdir — рабочая директория процесса.
	Workdir string

	// Timeout — максимальное время одного вызова (default: 10m).
	Timeout time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// NewSubprocessInvoker создаёт SubprocessInvoker.
func NewSubprocessInvoker(cfg SubprocessConfig) *SubprocessInvoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SubprocessInvoker{
		binary:   cfg.Binary,
		workdir:  cfg.Workdir,
		timeout:  timeout,
		logger:   logger,
		sessions: make(map[string]*exec.Cmd),
	}
}

// Invoke выполняет один вызов агента и возвращает сырой stdout.
func (s *SubprocessInvoker) Invoke(ctx context.Context, agentID string, req Request) (string, error) {
	if req.Message == "" {
		return "", ErrEmptyMessage
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.binary,
		"agent",
		"--agent", agentID,
		"--local",
		"--session-id", req.SessionID,
		"--message", req.Message,
		"--json",
	)
	cmd.Dir = s.workdir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("invoking agent process",
		"agent_id", agentID,
		"session_id", req.SessionID,
	)

	s.track(req.SessionID, cmd)
	defer s.untrack(req.SessionID)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("agent process timed out, killed",
				"agent_id", agentID,
				"session_id", req.SessionID,
				"timeout", s.timeout,
			)
			return "", fmt.Errorf("%w after %s", ErrInvokeTimeout, s.timeout)
		}
		return "", fmt.Errorf("%w: %v: %s", ErrInvokeFailed, err, firstLine(stderr.String()))
	}

	s.logger.Debug("agent process finished",
		"agent_id", agentID,
		"session_id", req.SessionID,
		"elapsed", elapsed,
	)

	return stdout.String(), nil
}

// StopSession убивает процесс указанной сессии.
func (s *SubprocessInvoker) StopSession(sessionID string) error {
	s.mu.Lock()
	cmd, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// StopAll убивает все активные сессии. Возвращает количество убитых.
// Это kill switch: running runs помечает failed вызывающая сторона.
func (s *SubprocessInvoker) StopAll() int {
	s.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(s.sessions))
	for _, cmd := range s.sessions {
		cmds = append(cmds, cmd)
	}
	s.mu.Unlock()

	killed := 0
	for _, cmd := range cmds {
		if cmd.Process != nil && cmd.Process.Kill() == nil {
			killed++
		}
	}

	s.logger.Warn("kill switch: stopped all agent sessions", "killed", killed)
	return killed
}

// ActiveSessions возвращает количество активных сессий.
func (s *SubprocessInvoker) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SubprocessInvoker) track(sessionID string, cmd *exec.Cmd) {
	s.mu.Lock()
	s.sessions[sessionID] = cmd
	s.mu.Unlock()
}

func (s *SubprocessInvoker) untrack(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
