package engine

import (
	"fmt"
	"sort"
	"text/template"
	"text/template/parse"
)

// TemplateFields возвращает имена полей документа, на которые
// ссылается тело шаблона, в отсортированном порядке.
//
// Используется при регистрации pipeline: шаблон узла может ссылаться
// только на объявленные входные поля, чтобы MissingFieldError не мог
// возникнуть из-за расхождения шаблона и метаданных узла.
func TemplateFields(body string) ([]string, error) {
	t, err := template.New("").
		Funcs(templateFuncs).
		Option("missingkey=error").
		Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	seen := make(map[string]bool)
	collectFields(t.Tree.Root, seen)

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}

// collectFields рекурсивно обходит дерево разбора и собирает первые
// идентификаторы FieldNode ({{ .text.chunk }} даёт "text").
func collectFields(node parse.Node, seen map[string]bool) {
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, item := range n.Nodes {
			collectFields(item, seen)
		}

	case *parse.ActionNode:
		collectPipe(n.Pipe, seen)

	case *parse.IfNode:
		collectPipe(n.Pipe, seen)
		collectFields(n.List, seen)
		collectFields(n.ElseList, seen)

	case *parse.RangeNode:
		collectPipe(n.Pipe, seen)
		collectFields(n.List, seen)
		collectFields(n.ElseList, seen)

	case *parse.WithNode:
		collectPipe(n.Pipe, seen)
		collectFields(n.List, seen)
		collectFields(n.ElseList, seen)

	case *parse.TemplateNode:
		collectPipe(n.Pipe, seen)
	}
}

// collectPipe собирает поля из pipeline-выражения.
func collectPipe(pipe *parse.PipeNode, seen map[string]bool) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					seen[a.Ident[0]] = true
				}
			case *parse.PipeNode:
				collectPipe(a, seen)
			}
		}
	}
}
