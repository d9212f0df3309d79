package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/repository"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/spf13/cobra"
)

func SuppressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "Manage the suppression registry",
		Long:  "Add addresses to the suppression registry and list existing entries",
	}

	cmd.AddCommand(SuppressAddCmd())
	cmd.AddCommand(SuppressListCmd())

	return cmd
}

func SuppressAddCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Suppress an email address",
		Long:  "Add an address to the suppression registry and halt its active sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSuppressAdd(args[0], reason, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "manual", "Suppression reason (hard_bounce, invalid_address, spam_complaint, unsubscribe, manual)")

	return cmd
}

func runSuppressAdd(email, reason, outputFormat string) error {
	ctx := context.Background()

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	suppressionSvc := service.NewSuppressionService(
		repository.NewSuppressionRepository(pool),
		repository.NewTxRunner(pool),
	)

	rec, err := suppressionSvc.Suppress(ctx, service.SuppressInput{
		Email:  email,
		Reason: domain.SuppressionReason(reason),
		Source: "cli",
	})
	if err != nil {
		return fmt.Errorf("failed to suppress: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"email":      rec.Email,
			"reason":     rec.Reason,
			"source":     rec.Source,
			"created_at": rec.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Suppressed: %s (%s)\n", rec.Email, rec.Reason)
	}

	return nil
}

func SuppressListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suppressed addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSuppressList(outputFormat, limit)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of results")

	return cmd
}

func runSuppressList(outputFormat string, limit int) error {
	ctx := context.Background()

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	suppressionSvc := service.NewSuppressionService(
		repository.NewSuppressionRepository(pool),
		repository.NewTxRunner(pool),
	)

	records, err := suppressionSvc.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list suppressions: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(records))
		for i, rec := range records {
			data[i] = map[string]interface{}{
				"email":      rec.Email,
				"reason":     rec.Reason,
				"source":     rec.Source,
				"created_at": rec.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No suppressions found")
		return nil
	}
	fmt.Println("Suppressions:")
	for _, rec := range records {
		fmt.Printf("  %s  %s (%s, %s)\n", rec.CreatedAt.Format("2006-01-02"), rec.Email, rec.Reason, rec.Source)
	}

	return nil
}
