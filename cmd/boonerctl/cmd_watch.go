package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/transport/http/dto"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// taskStreamMessage mirrors the messages on /ws/tasks/updates.
type taskStreamMessage struct {
	Type  string           `json:"type"`
	Tasks domain.TaskTable `json:"tasks"`
	Task  *domain.Task     `json:"task"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client := newAPIClient(serverURL, adminToken)
	out := cmd.OutOrStdout()

	path := "/ws/tasks/updates"
	if args[0] == "status" {
		path = "/ws/system/status"
	}

	if !noStream {
		err := streamWatch(ctx, client, path, func(data []byte) error {
			if args[0] == "status" {
				return renderStatusMessage(out, data)
			}
			return renderTaskMessage(out, data)
		})
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "stream unavailable (%v), polling every %s\n", err, pollInterval)
	}

	if args[0] == "status" {
		return pollStatus(ctx, client, out)
	}
	return pollTasks(ctx, client, out)
}

func streamWatch(ctx context.Context, client *apiClient, path string, handle func([]byte) error) error {
	header := http.Header{}
	if client.token != "" {
		header.Set("X-Admin-Token", client.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, client.wsURL(path), header)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := handle(data); err != nil {
			return err
		}
	}
}

func renderTaskMessage(w io.Writer, data []byte) error {
	var msg taskStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode task message: %w", err)
	}
	switch msg.Type {
	case "initial_state":
		printTaskTable(w, msg.Tasks)
		fmt.Fprintln(w, "--- watching for updates ---")
	case "task_update":
		if msg.Task != nil {
			printTaskLine(w, msg.Task)
		}
	}
	return nil
}

func renderStatusMessage(w io.Writer, data []byte) error {
	var snap domain.SystemSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode status message: %w", err)
	}
	printSnapshot(w, &snap)
	fmt.Fprintln(w)
	return nil
}

func pollTasks(ctx context.Context, client *apiClient, w io.Writer) error {
	seen := make(map[string]domain.TaskStatus)
	first := true
	return poll(ctx, func() error {
		var resp dto.TasksResponse
		if err := client.do(ctx, http.MethodGet, "/api/v1/tasks", nil, &resp); err != nil {
			return err
		}
		if first {
			printTaskTable(w, resp.Tasks)
			fmt.Fprintln(w, "--- watching for updates ---")
			for id, t := range resp.Tasks {
				seen[id] = t.Status
			}
			first = false
			return nil
		}
		for id, t := range resp.Tasks {
			if seen[id] != t.Status {
				seen[id] = t.Status
				printTaskLine(w, t)
			}
		}
		return nil
	})
}

func pollStatus(ctx context.Context, client *apiClient, w io.Writer) error {
	return poll(ctx, func() error {
		var snap domain.SystemSnapshot
		err := client.do(ctx, http.MethodGet, "/api/v1/system/status", nil, &snap)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
			return nil
		}
		if err != nil {
			return err
		}
		printSnapshot(w, &snap)
		fmt.Fprintln(w)
		return nil
	})
}

func poll(ctx context.Context, fn func() error) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if err := fn(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
