package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	statusOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusWaitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func styleStatus(status string) string {
	switch status {
	case "completed":
		return statusOKStyle.Render(status)
	case "failed", "cancelled":
		return statusFailStyle.Render(status)
	default:
		return statusWaitStyle.Render(status)
	}
}

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Query a running Factory instance for a run's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Factory service base address")
	rootCmd.AddCommand(statusCmd)
}

type runStatusResponse struct {
	ID        int64  `json:"ID"`
	IssueID   string `json:"IssueID"`
	Status    string `json:"Status"`
	Phase     int    `json:"Phase"`
	Iteration int    `json:"Iteration"`
	Summary   string `json:"Summary"`
	Error     string `json:"Error"`
	Branch    string `json:"Branch"`
	PRURL     string `json:"PRURL"`
	TeamID    string `json:"TeamID"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	runID := args[0]

	resp, err := http.Get(statusAddr + "/runs/" + runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request error:", err)
		return exitErr(ExitFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "factory returned %s\n", resp.Status)
		return exitErr(ExitFailure)
	}

	var run runStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		fmt.Fprintln(os.Stderr, "decode error:", err)
		return exitErr(ExitFailure)
	}

	fmt.Printf("run:       %d\n", run.ID)
	fmt.Printf("status:    %s\n", styleStatus(run.Status))
	fmt.Printf("phase:     %d (iteration %d)\n", run.Phase, run.Iteration)
	if run.TeamID != "" {
		fmt.Printf("team:      %s\n", run.TeamID)
	}
	if run.Branch != "" {
		fmt.Printf("branch:    %s\n", run.Branch)
	}
	if run.PRURL != "" {
		fmt.Printf("pr:        %s\n", run.PRURL)
	}
	if run.Summary != "" {
		fmt.Printf("summary:   %s\n", run.Summary)
	}
	if run.Error != "" {
		fmt.Printf("error:     %s\n", run.Error)
		return exitErr(ExitFailure)
	}

	return nil
}
