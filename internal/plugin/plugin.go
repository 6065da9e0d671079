// Package plugin talks to an out-of-process remote chunk-cache plugin
// (cmd/kuroko-cache-dynamodb) over the same line-delimited JSON-RPC
// protocol the teacher used for its own DynamoDB plugin: one JSON
// request per line on the child's stdin, one JSON response per line on
// its stdout. The plugin itself is generic key/value DynamoDB glue
// (connect/put_item/get_item); Client is the compiler-specific
// client built on top of it, storing compiled chunk blobs keyed by
// source hash instead of arbitrary VM values.
package plugin

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// request/response mirror cmd/kuroko-cache-dynamodb/main.go exactly;
// both sides must agree on this shape since nothing but JSON enforces it.
type request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Client is a running remote-cache plugin process.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	lock   sync.Mutex

	sessionID string
	clientID  string
	table     string
}

// Start launches executableName (resolved via PATH, matching the
// teacher's plugin lookup) and opens a DynamoDB connection scoped to
// region/table for storing cached chunks. accessKey/secretKey are
// optional; when empty the plugin falls back to the ambient AWS
// credential chain instead of static credentials.
func Start(executableName, region, table, accessKey, secretKey string) (*Client, error) {
	execPath, err := exec.LookPath(executableName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s not found on PATH: %w", executableName, err)
	}

	cmd := exec.Command(execPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin: stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin: start %s: %w", executableName, err)
	}

	c := &Client{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewScanner(stdoutPipe),
		sessionID: uuid.NewString(),
		table:     table,
	}

	connectOpts := map[string]interface{}{"region": region}
	if accessKey != "" && secretKey != "" {
		connectOpts["access_key"] = accessKey
		connectOpts["secret_key"] = secretKey
	}
	clientID, err := c.call("connect", connectOpts)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("plugin[%s]: connect: %w", c.sessionID, err)
	}
	id, ok := clientID.(string)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("plugin[%s]: connect returned non-string client id", c.sessionID)
	}
	c.clientID = id
	return c, nil
}

// Close stops the plugin process.
func (c *Client) Close() error {
	c.stdin.Close()
	return c.cmd.Wait()
}

// Get looks up a cached chunk blob by source hash. A miss is reported
// as (nil, false, nil), consistent with modcache.Cache.Get.
func (c *Client) Get(hash string) ([]byte, bool, error) {
	result, err := c.call("get_item", c.clientID, c.table, map[string]interface{}{"hash": hash})
	if err != nil {
		return nil, false, fmt.Errorf("plugin[%s]: get %s: %w", c.sessionID, hash, err)
	}
	if result == nil {
		return nil, false, nil
	}
	item, ok := result.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("plugin[%s]: get %s: unexpected item shape", c.sessionID, hash)
	}
	encoded, ok := item["blob"].(string)
	if !ok {
		return nil, false, fmt.Errorf("plugin[%s]: get %s: missing blob field", c.sessionID, hash)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("plugin[%s]: get %s: decode blob: %w", c.sessionID, hash, err)
	}
	return blob, true, nil
}

// Put uploads a compiled chunk blob under hash.
func (c *Client) Put(hash string, blob []byte) error {
	item := map[string]interface{}{
		"hash":       hash,
		"blob":       base64.StdEncoding.EncodeToString(blob),
		"created_at": time.Now().Unix(),
	}
	if _, err := c.call("put_item", c.clientID, c.table, item); err != nil {
		return fmt.Errorf("plugin[%s]: put %s: %w", c.sessionID, hash, err)
	}
	return nil
}

// call sends one JSON-RPC request and waits for the matching response
// line, mirroring PluginClient.Call from the teacher's original plugin
// package one-for-one (request encode, newline-delimited write, scan
// one response line, decode).
func (c *Client) call(method string, params ...interface{}) (interface{}, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	req := request{Method: method, Params: params}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(reqBytes, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	if !c.stdout.Scan() {
		if err := c.stdout.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("unexpected EOF from plugin")
	}

	var resp response
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote error: %s", resp.Error)
	}
	return resp.Result, nil
}
