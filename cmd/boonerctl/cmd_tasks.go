package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/transport/http/dto"
	"github.com/spf13/cobra"
)

func runSubmit(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, adminToken)
	var resp dto.TaskAcceptedResponse
	req := dto.SubmitTaskRequest{Target: args[0], Action: args[1]}
	if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/tasks", req, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", resp.TaskID, resp.Status, resp.Message)
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, adminToken)
	if len(args) == 1 {
		var task domain.Task
		if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/tasks/"+args[0], nil, &task); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), task)
	}

	var resp dto.TasksResponse
	if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/tasks", nil, &resp); err != nil {
		return err
	}
	printTaskTable(cmd.OutOrStdout(), resp.Tasks)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, adminToken)
	var snap domain.SystemSnapshot
	if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/system/status", nil, &snap); err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), &snap)
	return nil
}

func runTargets(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, adminToken)
	var targets []dto.TargetResponse
	if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/targets", nil, &targets); err != nil {
		return err
	}
	printTargets(cmd.OutOrStdout(), targets)
	return nil
}

func runReload(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, adminToken)
	var targets []dto.TargetResponse
	if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/targets/reload", nil, &targets); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reloaded %d targets\n", len(targets))
	printTargets(cmd.OutOrStdout(), targets)
	return nil
}

// printTaskTable prints tasks oldest first.
func printTaskTable(w io.Writer, table domain.TaskTable) {
	tasks := make([]*domain.Task, 0, len(table))
	for _, t := range table {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tTARGET\tACTION\tSTATUS\tUPDATED\tERROR")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.TargetID, t.Action, t.Status, t.UpdatedAt.Local().Format(time.TimeOnly), oneLine(t.Error))
	}
	tw.Flush()
}

func printTaskLine(w io.Writer, t *domain.Task) {
	line := fmt.Sprintf("%s  %-8s %-10s %-9s", t.UpdatedAt.Local().Format(time.TimeOnly), t.TargetID, t.Action, t.Status)
	if t.Error != "" {
		line += "  " + oneLine(t.Error)
	}
	fmt.Fprintf(w, "%s  %s\n", line, t.ID)
}

func printSnapshot(w io.Writer, snap *domain.SystemSnapshot) {
	fmt.Fprintf(w, "collected %s\n", snap.CollectedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "main server (%s)\n  CPU:  %s\n  GPU:  %s\n  RAM:  %s\n  Disk: %s\n",
		snap.MainServer.Status, snap.MainServer.CPU, snap.MainServer.GPU, snap.MainServer.RAM, snap.MainServer.Disk)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tHOST\tSTATUS\tLOAD\tSPECS\tERROR")
	for _, t := range snap.DeploymentTargets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", t.ID, t.Host, t.Status, t.Load, t.Specs, oneLine(t.Error))
	}
	tw.Flush()
}

func printTargets(w io.Writer, targets []dto.TargetResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tHOST\tROLE\tACTIONS")
	for _, t := range targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Host, t.Role, strings.Join(t.Actions, ","))
	}
	tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " | ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
