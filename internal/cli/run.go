package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для наблюдения за прохождениями.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect and cancel document runs",
	}

	cmd.AddCommand(
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"DOC_ID", "PIPELINE", "VER", "CURSOR", "STATUS", "ATTEMPT", "FAILURE", "ERROR"}

func runRow(s *RunStateResponse) []string {
	return []string{
		s.DocID,
		s.PipelineID,
		strconv.Itoa(s.PipelineVersion),
		strconv.Itoa(s.Cursor),
		s.Status,
		strconv.Itoa(s.Attempt),
		s.FailureKind,
		s.LastError,
	}
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show DOC_ID",
		Short: "Show document run state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			state, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(runHeaders, [][]string{runRow(state)}, state)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel DOC_ID",
		Short: "Cancel a document run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			state, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", state.DocID))
			out.Print(runHeaders, [][]string{runRow(state)}, state)
			return nil
		},
	}
}

// NewDocumentCmd создаёт команду просмотра готовых документов.
func NewDocumentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Inspect stored documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show DOC_ID",
		Short: "Show a stored document with all fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.GetDocument(args[0])
			if err != nil {
				return err
			}

			// Поля гетерогенные (текст, векторы), таблица их не передаёт
			out.Fields(doc.Fields, doc)
			return nil
		},
	})

	return cmd
}
