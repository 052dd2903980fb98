// Package lspmux implements the LSP Multiplexer of spec.md §4.2: a pool of
// long-lived language-server child processes, one per extension, exposing a
// capability-narrowed surface (definition, references, workspace symbols,
// hover, diagnostics, call hierarchy, rename edits, code actions) to the
// refactoring planner.
//
// The wire layer (this file) is grounded on the Content-Length-framed
// JSON-RPC transport used by a tree-sitter-adjacent LSP client in the
// example pack (services/trace/lsp/protocol.go); the process-lifecycle
// layer (server.go) is grounded on the teacher's pkg/mcp/client.go, which
// manages a subprocess's stdin/stdout/stderr pipes and graceful-then-forced
// shutdown the same way, just over line-delimited JSON instead of LSP's
// header framing.
package lspmux

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/forgeref/forgeref/internal/obserr"
)

const jsonrpcVersion = "2.0"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// protocol is one server's Content-Length-framed JSON-RPC connection. It
// owns request/response correlation; it does not own the subprocess.
type protocol struct {
	reader *bufio.Reader
	writer io.Writer

	writeMu sync.Mutex

	nextID    int64
	pending   map[int64]chan rpcResponse
	pendingMu sync.Mutex

	closed int32 // atomic
}

func newProtocol(r io.Reader, w io.Writer) *protocol {
	return &protocol{
		reader:  bufio.NewReader(r),
		writer:  w,
		pending: make(map[int64]chan rpcResponse),
	}
}

// call sends a request and blocks for its response, honoring ctx's
// deadline (spec.md §4.2: "every request carries a wall-clock deadline...
// the in-flight LSP request remains outstanding to the server but its
// result is discarded").
func (p *protocol) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, obserr.New(obserr.CategoryLSP, "server connection closed")
	}

	id := atomic.AddInt64(&p.nextID, 1)
	respCh := make(chan rpcResponse, 1)
	p.pendingMu.Lock()
	p.pending[id] = respCh
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.write(rpcRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "write request "+method, err)
	}

	select {
	case <-ctx.Done():
		return nil, obserr.Wrap(obserr.CategoryTimeout, "request "+method+" abandoned at deadline", ctx.Err())
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, obserr.New(obserr.CategoryLSP, fmt.Sprintf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code))
		}
		return resp.Result, nil
	}
}

func (p *protocol) notify(method string, params any) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return obserr.New(obserr.CategoryLSP, "server connection closed")
	}
	return p.write(rpcNotification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (p *protocol) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(p.writer, header); err != nil {
		return err
	}
	_, err = p.writer.Write(data)
	return err
}

// readLoop reads framed messages until the stream closes or ctx is
// cancelled. Run it in its own goroutine; it is the only reader of stdout.
func (p *protocol) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := p.readMessage()
		if err != nil {
			if atomic.LoadInt32(&p.closed) == 1 {
				return nil
			}
			return err
		}
		p.dispatch(msg)
	}
}

func (p *protocol) readMessage() (json.RawMessage, error) {
	contentLength := -1
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if rest, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return nil, fmt.Errorf("lspmux: invalid Content-Length %q: %w", rest, err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("lspmux: message with no Content-Length header")
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *protocol) dispatch(msg json.RawMessage) {
	var resp rpcResponse
	if err := json.Unmarshal(msg, &resp); err != nil || resp.ID == 0 {
		// Not a correlatable response: a server->client notification
		// (e.g. window/logMessage) or a request we don't service. Both
		// are out of scope for a mux that only ever initiates requests.
		return
	}
	p.pendingMu.Lock()
	ch, ok := p.pending[resp.ID]
	p.pendingMu.Unlock()
	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// close marks the protocol closed and unblocks every pending call with an
// error response so no caller of call() hangs forever.
func (p *protocol) close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- rpcResponse{ID: id, Error: &rpcError{Code: -32099, Message: "server connection closed"}}:
		default:
		}
		delete(p.pending, id)
	}
}
