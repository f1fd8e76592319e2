package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ipcCommand is the JSON structure sent to mpv's IPC socket.
type ipcCommand struct {
	Command []interface{} `json:"command"`
}

// ipcResponse is the JSON structure received from mpv's IPC socket.
type ipcResponse struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

const (
	dialRetries  = 3
	dialDelay    = 100 * time.Millisecond
	readDeadline = 1 * time.Second
	readBufSize  = 4096
)

// errPropertyUnavailable is mpv's answer to a property read that has no
// meaningful value in the current state (common while idle). Callers filter
// it instead of treating it as an operation failure.
var errPropertyUnavailable = errors.New("property unavailable")

func isPropertyUnavailable(err error) bool {
	return errors.Is(err, errPropertyUnavailable)
}

// sendCommand performs a single IPC round trip against the given socket.
// Transient connect failures are retried a few times; every other failure
// surfaces immediately with its typed kind.
func sendCommand(socketPath, op string, command []interface{}) (interface{}, error) {
	conn, err := dialWithRetry(socketPath)
	if err != nil {
		return nil, newError(KindChannelClosed, op, err)
	}
	defer conn.Close()

	payload, err := json.Marshal(ipcCommand{Command: command})
	if err != nil {
		return nil, newError(KindProtocol, op, fmt.Errorf("marshal: %w", err))
	}

	// mpv requires newline-delimited JSON.
	if _, err = conn.Write(append(payload, '\n')); err != nil {
		return nil, newError(KindChannelClosed, op, fmt.Errorf("write: %w", err))
	}

	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return nil, newError(KindChannelClosed, op, fmt.Errorf("set deadline: %w", err))
	}

	buf := make([]byte, readBufSize)
	n, err := conn.Read(buf)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, newError(KindTimeout, op, err)
		}
		return nil, newError(KindChannelClosed, op, fmt.Errorf("read: %w", err))
	}

	var resp ipcResponse
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		return nil, newError(KindProtocol, op, fmt.Errorf("unmarshal: %w", err))
	}

	if resp.Error != "" && resp.Error != "success" {
		if resp.Error == "property unavailable" {
			return nil, newError(KindProtocol, op, errPropertyUnavailable)
		}
		return nil, newError(KindProtocol, op, fmt.Errorf("mpv: %s", resp.Error))
	}

	return resp.Data, nil
}

func dialWithRetry(socketPath string) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < dialRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(dialDelay)
		}
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", dialRetries, lastErr)
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
