package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineCreateCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineActivateCmd(clientFn, outputFn, true),
		newPipelineActivateCmd(clientFn, outputFn, false),
		newPipelinePublishCmd(clientFn, outputFn),
		newPipelineVersionCmd(clientFn, outputFn),
	)

	return cmd
}

func pipelineRow(p *PipelineResponse) []string {
	return []string{p.ID, p.Name, strconv.FormatBool(p.IsActive), p.CreatedAt}
}

var pipelineHeaders = []string{"ID", "NAME", "ACTIVE", "CREATED"}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i := range pipelines {
				rows[i] = pipelineRow(&pipelines[i])
			}

			out.Print(pipelineHeaders, rows, pipelines)
			return nil
		},
	}
}

func newPipelineCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.CreatePipeline(name)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline created: %s", pipeline.ID))
			out.Print(pipelineHeaders, [][]string{pipelineRow(pipeline)}, pipeline)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Pipeline name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			out.Print(pipelineHeaders, [][]string{pipelineRow(pipeline)}, pipeline)
			return nil
		},
	}
}

func newPipelineActivateCmd(clientFn func() *Client, outputFn func() *Output, active bool) *cobra.Command {
	use, short := "activate ID", "Resume accepting documents"
	if !active {
		use, short = "deactivate ID", "Stop accepting documents (in-flight documents finish)"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.SetPipelineActive(args[0], active)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline %s: active=%v", pipeline.ID, pipeline.IsActive))
			out.Print(pipelineHeaders, [][]string{pipelineRow(pipeline)}, pipeline)
			return nil
		},
	}
}

func newPipelinePublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "publish PIPELINE_ID",
		Short: "Publish a new pipeline version from spec file (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			spec, err := readSpecFile(specFile)
			if err != nil {
				return err
			}

			version, err := client.PublishVersion(args[0], spec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Version %d published for pipeline %s", version.Version, version.PipelineID))
			out.Print(
				[]string{"PIPELINE_ID", "VERSION", "CREATED"},
				[][]string{{version.PipelineID, strconv.Itoa(version.Version), version.CreatedAt}},
				version,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&specFile, "spec-file", "", "Path to spec file, .yaml/.yml or .json (required)")
	cmd.MarkFlagRequired("spec-file")

	return cmd
}

func newPipelineVersionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var versionNum int

	cmd := &cobra.Command{
		Use:   "version PIPELINE_ID",
		Short: "Show a pipeline version (latest by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var version *PipelineVersionResponse
			var err error
			if versionNum > 0 {
				version, err = client.GetVersion(args[0], versionNum)
			} else {
				version, err = client.GetLatestVersion(args[0])
			}
			if err != nil {
				return err
			}

			// Спецификация иерархическая, таблица её не передаёт
			out.JSON(version)
			return nil
		},
	}

	cmd.Flags().IntVar(&versionNum, "version", 0, "Version number (0 = latest)")

	return cmd
}

// readSpecFile читает спецификацию из YAML или JSON файла и
// возвращает её как JSON для API.
func readSpecFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var spec map[string]any
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("spec file is not valid YAML: %w", err)
		}
		converted, err := json.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to convert spec to JSON: %w", err)
		}
		return converted, nil
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("spec file is not valid JSON")
	}
	return json.RawMessage(data), nil
}
