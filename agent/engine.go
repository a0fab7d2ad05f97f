// Package agent drives the reasoning engine. The engine is an external CLI
// invoked per message batch; this package assembles its prompt, runs the
// subprocess with a hard timeout, retries transient crashes, and threads
// the session id through so each chat keeps one long-lived engine
// conversation.
package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxAttempts = 2

	// Canned replies for the three failure shapes. The customer always
	// gets some text; errors never surface raw.
	replyCrashed    = "Sorry, I had a little hiccup! Could you try again?"
	replySpawnError = "Sorry, I'm having technical difficulties. Please try again shortly!"
	replyEmpty      = "I'm not sure how to help with that. Could you rephrase?"
)

// SIGTERM, SIGKILL, and SIGABRT terminations are worth one more try; any
// other non-zero exit is treated as a real engine failure. A -1 exit code
// means the process died to a signal without a shell mapping it to 128+n,
// which is what a timeout kill looks like.
var retryableExitCodes = map[int]bool{143: true, 137: true, 134: true, -1: true}

// Invocation is one engine run.
type Invocation struct {
	ChatID       string
	Prompt       string
	SystemPrompt string
	Model        string
	AllowedTools []string

	// WorkDir is the chat's contact directory. It becomes the subprocess
	// cwd and its --add-dir grant, which is how the engine reaches the
	// memory file and downloaded media.
	WorkDir string
}

type runResult struct {
	stdout   string
	stderr   string
	exitCode int
}

type runFunc func(ctx context.Context, binary string, args []string, stdin, dir string) (runResult, error)

// Engine invokes the reasoning CLI.
type Engine struct {
	binary     string
	timeout    time.Duration
	retryDelay time.Duration
	maxTurns   int
	sessions   *SessionStore

	run   runFunc
	sleep func(time.Duration)
}

func NewEngine(binary string, timeout, retryDelay time.Duration, sessions *SessionStore) *Engine {
	if binary == "" {
		binary = "claude"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Engine{
		binary:     binary,
		timeout:    timeout,
		retryDelay: retryDelay,
		maxTurns:   5,
		sessions:   sessions,
		run:        runSubprocess,
		sleep:      time.Sleep,
	}
}

func (e *Engine) buildArgs(inv Invocation, sessionID string) []string {
	args := []string{"-p", "--output-format", "text", "--max-turns", strconv.Itoa(e.maxTurns)}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	if len(inv.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(inv.AllowedTools, ","))
	}
	if inv.WorkDir != "" {
		args = append(args, "--add-dir", inv.WorkDir)
	}
	if inv.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", inv.SystemPrompt)
	}
	return args
}

// Invoke runs the engine and always returns customer-facing text. Crashes,
// spawn failures, and empty output map to canned replies after retries are
// exhausted.
func (e *Engine) Invoke(ctx context.Context, inv Invocation) string {
	sessionID := e.sessions.Get(inv.ChatID)
	args := e.buildArgs(inv, sessionID)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, e.timeout)
		res, err := e.run(runCtx, e.binary, args, inv.Prompt, inv.WorkDir)
		cancel()

		if err != nil {
			slog.Error("engine_spawn_failed", "chat_id", inv.ChatID, "attempt", attempt, "error", err.Error())
			if attempt < maxAttempts {
				e.sleep(e.retryDelay)
				continue
			}
			return replySpawnError
		}

		if res.exitCode != 0 && res.stdout == "" {
			slog.Error("engine_exited", "chat_id", inv.ChatID, "attempt", attempt,
				"exit_code", res.exitCode, "stderr", truncate(res.stderr, 300))
			if retryableExitCodes[res.exitCode] && attempt < maxAttempts {
				e.sleep(e.retryDelay)
				continue
			}
			return replyCrashed
		}

		if token := ParseSessionToken(res.stderr); token != "" {
			if err := e.sessions.Save(inv.ChatID, token); err != nil {
				slog.Warn("session_save_failed", "chat_id", inv.ChatID, "error", err.Error())
			}
		}

		text := strings.TrimSpace(res.stdout)
		if text == "" {
			return replyEmpty
		}
		return text
	}
	return replyCrashed
}

func runSubprocess(ctx context.Context, binary string, args []string, stdin, dir string) (runResult, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "TERM=dumb")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := runResult{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
