package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewIngestCmd создаёт команду приёма документов.
func NewIngestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "ingest PIPELINE_ID",
		Short: "Ingest a batch of documents from file (YAML or JSON array)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payloads, err := readPayloadFile(payloadFile)
			if err != nil {
				return err
			}

			receipt, err := client.Ingest(args[0], payloads)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Accepted %d/%d documents into version %d",
				receipt.Accepted, len(receipt.Results), receipt.Version))

			headers := []string{"INDEX", "DOC_ID", "ERROR"}
			rows := make([][]string, len(receipt.Results))
			for i, r := range receipt.Results {
				rows[i] = []string{fmt.Sprintf("%d", r.Index), r.DocID, r.Error}
			}

			out.Print(headers, rows, receipt)
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadFile, "file", "", "Path to payloads file, .yaml/.yml or .json (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

// readPayloadFile читает батч payload'ов из YAML или JSON файла.
// Файл содержит массив объектов.
func readPayloadFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payloads file: %w", err)
	}

	var payloads []map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &payloads); err != nil {
			return nil, fmt.Errorf("payloads file is not a valid YAML array: %w", err)
		}
		return payloads, nil
	}

	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("payloads file is not a valid JSON array: %w", err)
	}
	return payloads, nil
}
