// Package ipclauncher sends traffic launch and stop commands to the
// emulator-side launcher over a local IPC pipe. Commands are fire-and-forget.
package ipclauncher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	ipc "github.com/james-barrow/golang-ipc"
)

// DefaultPipeName is used when traffic.ipc.pipe_name is empty.
const DefaultPipeName = "flowlabel-traffic"

// MessageType identifies a command on the pipe. Zero is reserved by the IPC library.
type MessageType int

const (
	StartMessageType MessageType = iota + 1
	StopMessageType
)

// StartMessageBody launches a profile on a host.
type StartMessageBody struct {
	Host    string               `json:"host"`
	Profile model.TrafficProfile `json:"profile"`
}

// StopMessageBody stops a named profile on a host.
type StopMessageBody struct {
	Host    string `json:"host"`
	Profile string `json:"profile"`
}

const retryInterval = 50 * time.Millisecond

// pipe is the write side of an IPC client.
type pipe interface {
	Write(msgType int, message []byte) error
}

// Launcher implements model.TrafficGenerator.
type Launcher struct {
	client *ipc.Client
	pipe   pipe
}

// New starts the IPC client. The connection completes in the background;
// writes made before it is up are retried until their context expires.
func New(cfg config.IPCConfig) (*Launcher, error) {
	name := cfg.PipeName
	if name == "" {
		name = DefaultPipeName
	}
	c, err := ipc.StartClient(name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start IPC client: %w", err)
	}
	logger.EmuLog.Infof("Traffic launcher client started on pipe %q", name)
	return &Launcher{client: c, pipe: c}, nil
}

// Start asks the launcher to run profile on host.
func (l *Launcher) Start(ctx context.Context, host string, profile model.TrafficProfile) error {
	return l.message(ctx, StartMessageType, StartMessageBody{Host: host, Profile: profile})
}

// Stop asks the launcher to stop the named profile on host.
func (l *Launcher) Stop(ctx context.Context, host string, profile string) error {
	return l.message(ctx, StopMessageType, StopMessageBody{Host: host, Profile: profile})
}

// Close closes the pipe.
func (l *Launcher) Close() {
	if l.client != nil {
		l.client.Close()
	}
}

func (l *Launcher) message(ctx context.Context, msgType MessageType, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode message %d: %w", msgType, err)
	}
	for {
		err := l.pipe.Write(int(msgType), data)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(fmt.Errorf("failed to send message %d", msgType), err, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// Decode parses a command received on the launcher side of the pipe.
func Decode(msgType int, data []byte) (any, error) {
	switch MessageType(msgType) {
	case StartMessageType:
		var body StartMessageBody
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return body, nil
	case StopMessageType:
		var body StopMessageBody
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return body, nil
	}
	return nil, fmt.Errorf("unknown message type %d", msgType)
}
