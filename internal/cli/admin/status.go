package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cadencehq/cadence/internal/repository"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/spf13/cobra"
)

func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [contact-id-or-email]",
		Short: "Show sequence progression",
		Long:  "Show one contact's progression when given an id or email, or aggregate counts per status otherwise",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	statusSvc := service.NewStatusService(
		repository.NewContactRepository(pool),
		repository.NewSequenceStateRepository(pool),
		repository.NewStepHistoryRepository(pool),
		service.NewScorer(),
	)

	if len(args) == 0 {
		return printCounts(ctx, statusSvc, outputFormat)
	}
	return printContactStatus(ctx, statusSvc, args[0], outputFormat)
}

func printCounts(ctx context.Context, svc *service.StatusService, outputFormat string) error {
	counts, err := svc.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sequences: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(counts, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(counts) == 0 {
		fmt.Println("No sequences found")
		return nil
	}
	fmt.Println("Sequences by status:")
	for status, n := range counts {
		fmt.Printf("  %-20s %d\n", status, n)
	}

	return nil
}

func printContactStatus(ctx context.Context, svc *service.StatusService, idOrEmail, outputFormat string) error {
	var status *service.ContactStatus
	var err error
	if strings.Contains(idOrEmail, "@") {
		status, err = svc.GetByEmail(ctx, idOrEmail)
	} else {
		status, err = svc.GetByContactID(ctx, idOrEmail)
	}
	if err != nil {
		return fmt.Errorf("failed to look up contact: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"contact_id":  status.Contact.ID,
			"email":       status.Contact.Email,
			"name":        status.Contact.Name,
			"status":      status.Status,
			"step_index":  status.StepIndex,
			"attempts":    status.Attempts,
			"enrolled_at": status.EnrolledAt,
		}
		if status.LastSentAt != nil {
			data["last_sent_at"] = status.LastSentAt
		}
		if status.NextDueAt != nil {
			data["next_due_at"] = status.NextDueAt
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Printf("Contact:   %s <%s>\n", status.Contact.Name, status.Contact.Email)
	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Step:      %d (attempt %d)\n", status.StepIndex, status.Attempts)
	fmt.Printf("Enrolled:  %s\n", status.EnrolledAt.Format("2006-01-02 15:04 MST"))
	if status.LastSentAt != nil {
		fmt.Printf("Last sent: %s\n", status.LastSentAt.Format("2006-01-02 15:04 MST"))
	}
	if status.NextDueAt != nil {
		fmt.Printf("Next due:  %s\n", status.NextDueAt.Format("2006-01-02 15:04 MST"))
	}

	return nil
}
