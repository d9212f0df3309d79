package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/repository"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/spf13/cobra"
)

func EnrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll <csv-file>",
		Short: "Enroll contacts from a CSV file",
		Long: `Enroll contacts into the sequence from a CSV file.

The file must have a header row. Recognized columns are email (required),
name, organization and role; any other column becomes a contact attribute
under its header name. Suppressed and already-active addresses are
reported per row and never fail the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: runEnroll,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	inputs, err := readContactsCSV(args[0])
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no contact rows in %s", args[0])
	}

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	template, err := domain.LoadTemplateFile(cfg.TemplatePath)
	if err != nil {
		return fmt.Errorf("failed to load sequence template: %w", err)
	}

	enrollmentSvc := service.NewEnrollmentService(
		repository.NewContactRepository(pool),
		repository.NewSequenceStateRepository(pool),
		repository.NewSuppressionRepository(pool),
		template,
	)

	results := enrollmentSvc.EnrollBatch(ctx, inputs)

	enrolled := 0
	for _, r := range results {
		if r.Enrolled {
			enrolled++
		}
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(results))
		for i, r := range results {
			item := map[string]interface{}{
				"email":    r.Email,
				"enrolled": r.Enrolled,
			}
			if r.Enrolled {
				item["contact_id"] = r.ContactID
				item["state_id"] = r.StateID
			} else if r.Err != nil {
				item["error"] = r.Err.Error()
			}
			data[i] = item
		}
		output := map[string]interface{}{
			"enrolled": enrolled,
			"failed":   len(results) - enrolled,
			"results":  data,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	for _, r := range results {
		if r.Enrolled {
			fmt.Printf("enrolled  %s (contact: %s)\n", r.Email, r.ContactID)
		} else {
			fmt.Printf("skipped   %s: %v\n", r.Email, r.Err)
		}
	}
	fmt.Printf("\n%d enrolled, %d failed\n", enrolled, len(results)-enrolled)

	return nil
}

func readContactsCSV(path string) ([]service.EnrollContactInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var inputs []service.EnrollContactInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		input := service.EnrollContactInput{Attributes: domain.Attributes{}}
		for i, value := range record {
			if i >= len(header) {
				break
			}
			value = strings.TrimSpace(value)
			switch header[i] {
			case "email":
				input.Email = value
			case "name":
				input.Name = value
			case "organization":
				input.Organization = value
			case "role":
				input.Role = value
			default:
				if value != "" {
					input.Attributes[domain.AttrKey(header[i])] = value
				}
			}
		}
		if input.Email == "" {
			return nil, fmt.Errorf("CSV line %d has no email", line)
		}
		inputs = append(inputs, input)
	}

	return inputs, nil
}
