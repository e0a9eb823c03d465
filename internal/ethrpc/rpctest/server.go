// Package rpctest provides a scripted JSON-RPC node for tests.
package rpctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// HandlerFunc answers one method. Returning a non-nil *Error sends an error
// response; otherwise result is marshalled as the result.
type HandlerFunc func(params []json.RawMessage) (result any, rpcErr *Error)

// Node is an httptest server that dispatches JSON-RPC calls by method name.
type Node struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    map[string]int
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewNode starts a node that is closed when the test ends.
func NewNode(t *testing.T) *Node {
	t.Helper()
	n := &Node{handlers: map[string]HandlerFunc{}, calls: map[string]int{}}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Handle registers fn for method.
func (n *Node) Handle(method string, fn HandlerFunc) {
	n.mu.Lock()
	n.handlers[method] = fn
	n.mu.Unlock()
}

// Result registers a method that always returns v.
func (n *Node) Result(method string, v any) {
	n.Handle(method, func([]json.RawMessage) (any, *Error) { return v, nil })
}

// Fail registers a method that always fails with code and message.
func (n *Node) Fail(method string, code int64, message string) {
	n.Handle(method, func([]json.RawMessage) (any, *Error) {
		return nil, &Error{Code: code, Message: message}
	})
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	fn, ok := n.handlers[req.Method]
	n.calls[req.Method]++
	n.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: "the method " + req.Method + " does not exist"}
	} else {
		resp.Result, resp.Error = fn(req.Params)
		if resp.Result == nil && resp.Error == nil {
			resp.Result = json.RawMessage("null")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
