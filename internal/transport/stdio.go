package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"mcpcoordinator/internal/router"
	"mcpcoordinator/pkg/logging"
)

// StdioAdapter serves the Router over the process's own stdin/stdout,
// one JSON-RPC message per line. Every request it forwards is tagged
// with the local security context.
type StdioAdapter struct {
	router *router.Router
	reader io.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewStdioAdapter creates an adapter reading from os.Stdin and writing
// to os.Stdout.
func NewStdioAdapter(r *router.Router) *StdioAdapter {
	return &StdioAdapter{router: r, reader: os.Stdin, writer: os.Stdout}
}

// Serve reads newline-delimited JSON-RPC messages until stdin closes or
// ctx is cancelled.
func (a *StdioAdapter) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(a.reader)
	scanner.Buffer(make([]byte, 0, 10<<20), 10<<20)

	rc := router.RequestContext{Security: router.ContextLocal, ClientID: "stdio"}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		lineCopy := make([]byte, len(line))
		copy(lineCopy, line)

		resp := a.router.Handle(ctx, rc, lineCopy)
		if resp != nil {
			a.write(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("transport: read stdin: %w", err)
	}
	return nil
}

func (a *StdioAdapter) write(resp *router.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("transport", err, "marshal stdio response")
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.writer.Write(data); err != nil {
		logging.Error("transport", err, "write stdio response")
	}
}
