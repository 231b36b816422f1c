package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для управления шаблонами.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage instruction templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateShowCmd(clientFn, outputFn),
	)

	return cmd
}

var templateHeaders = []string{"ID", "VERSION", "NAME", "CREATED"}

func templateRow(t *TemplateResponse) []string {
	return []string{t.ID, strconv.Itoa(t.Version), t.Name, t.CreatedAt}
}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List latest versions of all templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.ListTemplates()
			if err != nil {
				return err
			}

			rows := make([][]string, len(templates))
			for i := range templates {
				rows[i] = templateRow(&templates[i])
			}

			out.Print(templateHeaders, rows, templates)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var id, name, bodyFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Save a new template version from file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			body, err := os.ReadFile(bodyFile)
			if err != nil {
				return fmt.Errorf("failed to read body file: %w", err)
			}

			template, err := client.CreateTemplate(id, name, string(body))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template %s version %d saved", template.ID, template.Version))
			out.Print(templateHeaders, [][]string{templateRow(template)}, template)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Template ID (empty = new template)")
	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Path to template body file (required)")
	cmd.MarkFlagRequired("body-file")

	return cmd
}

func newTemplateShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show latest template version with body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			template, err := client.GetTemplate(args[0])
			if err != nil {
				return err
			}

			// Тело многострочное, таблица его не передаёт
			out.JSON(template)
			return nil
		},
	}
}
