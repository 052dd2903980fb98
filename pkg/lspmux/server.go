package lspmux

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/internal/obslog"
	"github.com/forgeref/forgeref/pkg/types"
)

// openDoc is a currently-opened document: its last-sent version and text,
// kept so a crash-restarted server can be handed the same documents back
// (spec.md §4.2: "previously opened documents are re-opened transparently").
type openDoc struct {
	version int
	text    string
}

// server is one language server child process and its lifecycle state
// machine, grounded on the teacher's pkg/mcp/client.go (subprocess pipes,
// graceful-then-killed Stop) generalized to LSP's Content-Length framing
// and the Uninitialized/Starting/Ready/Draining/Down states spec.md §4.2
// requires instead of the teacher's simple running/not-running bool.
type server struct {
	cfg    ServerConfig
	logger *obslog.Logger

	mu           sync.Mutex
	st           types.ServerState
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	proto        *protocol
	cancel       context.CancelFunc
	restartCount int
	lastStart    time.Time
	openDocs     map[string]*openDoc
}

func newServer(cfg ServerConfig, logger *obslog.Logger) *server {
	return &server{
		cfg:      cfg,
		logger:   logger,
		st:       types.ServerUninitialized,
		openDocs: make(map[string]*openDoc),
	}
}

func (s *server) state() types.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *server) setState(st types.ServerState) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

// ensureReady lazily starts (or restarts) the server and is always safe to
// call before issuing a request; it is a no-op if the server is already
// Ready.
func (s *server) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()

	switch st {
	case types.ServerReady:
		return nil
	case types.ServerStarting:
		// Another caller is already starting it; treat as transiently
		// unavailable rather than racing a second subprocess launch.
		return obserr.New(obserr.CategoryLSP, s.cfg.LanguageName+" server is still starting")
	}
	return s.start(ctx)
}

func (s *server) start(ctx context.Context) error {
	s.mu.Lock()
	if s.st == types.ServerStarting || s.st == types.ServerReady {
		s.mu.Unlock()
		return nil
	}
	if since := time.Since(s.lastStart); s.restartCount > 0 && since < s.cfg.restartInterval() {
		s.mu.Unlock()
		return obserr.New(obserr.CategoryLSP, s.cfg.LanguageName+" server restarting too frequently, backing off")
	}
	s.st = types.ServerStarting
	s.lastStart = time.Now()
	s.mu.Unlock()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, s.cfg.Command, s.cfg.Args...)
	if s.cfg.WorkspaceDir != "" {
		cmd.Dir = s.cfg.WorkspaceDir
	}
	for k, v := range s.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		s.setState(types.ServerDown)
		return obserr.Wrap(obserr.CategoryLSP, "create stdin pipe for "+s.cfg.LanguageName, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		s.setState(types.ServerDown)
		return obserr.Wrap(obserr.CategoryLSP, "create stdout pipe for "+s.cfg.LanguageName, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		s.setState(types.ServerDown)
		return obserr.Wrap(obserr.CategoryLSP, "start "+s.cfg.LanguageName+" server", err)
	}

	proto := newProtocol(stdout, stdin)

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.proto = proto
	s.cancel = cancel
	s.restartCount++
	docsToReopen := make(map[string]*openDoc, len(s.openDocs))
	for path, doc := range s.openDocs {
		docsToReopen[path] = doc
	}
	s.mu.Unlock()

	go func() {
		if err := proto.readLoop(procCtx); err != nil && s.logger != nil {
			s.logger.Warnf("%s language server read loop ended: %v", s.cfg.LanguageName, err)
		}
		s.setState(types.ServerDown)
	}()
	go func() {
		_ = cmd.Wait()
		proto.close()
		s.setState(types.ServerDown)
	}()

	if _, err := proto.call(ctx, "initialize", initializeParams(s.cfg.WorkspaceDir)); err != nil {
		s.setState(types.ServerDown)
		return obserr.Wrap(obserr.CategoryLSP, "initialize "+s.cfg.LanguageName+" server", err)
	}
	_ = proto.notify("initialized", map[string]any{})

	s.setState(types.ServerReady)
	if s.logger != nil {
		s.logger.Infof("started %s language server (%s)", s.cfg.LanguageName, s.cfg.Command)
	}

	// Transparently re-open any documents that survived a crash restart.
	for path, doc := range docsToReopen {
		_ = proto.notify("textDocument/didOpen", didOpenParams(path, doc.text, doc.version))
	}
	return nil
}

// stop drains then kills the server, mirroring the teacher's Stop: a
// graceful shutdown request first, then a forced kill if it doesn't exit.
func (s *server) stop(ctx context.Context) error {
	s.mu.Lock()
	if s.st == types.ServerDown || s.st == types.ServerUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.st = types.ServerDraining
	proto, cmd, cancel := s.proto, s.cmd, s.cancel
	s.mu.Unlock()

	if proto != nil {
		_, _ = proto.call(ctx, "shutdown", nil)
		_ = proto.notify("exit", nil)
	}

	done := make(chan struct{})
	go func() {
		if cmd != nil {
			_ = cmd.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	s.setState(types.ServerDown)
	return nil
}

func (s *server) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	proto := s.proto
	s.mu.Unlock()
	if proto == nil {
		return nil, obserr.New(obserr.CategoryLSP, s.cfg.LanguageName+" server not running")
	}
	return proto.call(ctx, method, params)
}

func (s *server) open(path, text string) error {
	s.mu.Lock()
	s.openDocs[path] = &openDoc{version: 1, text: text}
	proto := s.proto
	s.mu.Unlock()
	if proto == nil {
		return nil // will be replayed on next start
	}
	return proto.notify("textDocument/didOpen", didOpenParams(path, text, 1))
}

func (s *server) didChange(path, newText string) error {
	s.mu.Lock()
	doc, ok := s.openDocs[path]
	if !ok {
		doc = &openDoc{}
		s.openDocs[path] = doc
	}
	doc.version++
	doc.text = newText
	version := doc.version
	proto := s.proto
	s.mu.Unlock()
	if proto == nil {
		return nil
	}
	return proto.notify("textDocument/didChange", map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path), "version": version},
		"contentChanges": []any{
			map[string]any{"text": newText},
		},
	})
}

func (s *server) close(path string) error {
	s.mu.Lock()
	delete(s.openDocs, path)
	proto := s.proto
	s.mu.Unlock()
	if proto == nil {
		return nil
	}
	return proto.notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path)},
	})
}

func initializeParams(root string) map[string]any {
	return map[string]any{
		"processId": nil,
		"rootUri":   pathToURI(root),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization": map[string]any{"didSave": true},
				"rename":          map[string]any{"prepareSupport": true},
			},
			"workspace": map[string]any{"symbol": map[string]any{}},
		},
	}
}

func didOpenParams(path, text string, version int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{
			"uri":        pathToURI(path),
			"languageId": "",
			"version":    version,
			"text":       text,
		},
	}
}

func pathToURI(path string) string {
	if path == "" {
		return ""
	}
	return "file://" + path
}
