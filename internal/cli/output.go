package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Предел длины значения поля в однострочном просмотре.
const fieldPreviewLimit = 120

// Output печатает результаты команд: таблицы и карты полей в
// человекочитаемом режиме, сырой JSON под флагом --json. Данные идут
// в stdout, служебные сообщения в stderr, чтобы табличный вывод можно
// было передавать по конвейеру.
type Output struct {
	asJSON bool
	data   io.Writer
	msg    io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(asJSON bool) *Output {
	return &Output{asJSON: asJSON, data: os.Stdout, msg: os.Stderr}
}

// Print выводит строки таблицей; в режиме --json печатает jsonData.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.asJSON {
		o.JSON(jsonData)
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	o.printRow(upper(headers), widths)
	for _, row := range rows {
		o.printRow(row, widths)
	}
}

// Fields выводит карту полей документа: ключи в алфавитном порядке,
// значения обрезаются до одной строки. В режиме --json — jsonData.
func (o *Output) Fields(fields map[string]any, jsonData any) {
	if o.asJSON {
		o.JSON(jsonData)
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(o.data, "%s = %s\n", k, previewValue(fields[k]))
	}
}

// JSON выводит значение с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.data)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение в stderr, не загрязняя stdout.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.msg, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.msg, "Error: "+msg)
}

// printRow печатает ячейки, выровненные по ширинам колонок.
func (o *Output) printRow(cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}
	fmt.Fprintln(o.data, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// upper возвращает копию заголовков в верхнем регистре.
func upper(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ToUpper(h)
	}
	return out
}

// previewValue приводит значение поля к однострочному виду.
func previewValue(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		s = string(b)
	}

	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > fieldPreviewLimit {
		s = s[:fieldPreviewLimit] + "..."
	}
	return s
}
