package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// templateFuncs — фильтры значений, доступные в шаблонах.
//
// Все функции чистые: рендеринг детерминирован, одинаковая пара
// (тело, поля) всегда даёт одинаковую строку.
var templateFuncs = template.FuncMap{
	// default — значение по умолчанию, если аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// truncate — обрезает строку до n рун
	"truncate": func(n int, s string) string {
		if n < 0 {
			return ""
		}
		runes := []rune(s)
		if len(runes) <= n {
			return s
		}
		return string(runes[:n])
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	// json — сериализует значение в JSON строку
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// hasPrefix — проверяет префикс строки
	"hasPrefix": strings.HasPrefix,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// missingKeyRe извлекает имя поля из ошибки исполнения при
// missingkey=error.
var missingKeyRe = regexp.MustCompile(`no entry for key "([^"]*)"`)

// Render рендерит тело шаблона по полям документа.
//
// Плейсхолдеры разрешаются по имени: {{ .text }}, {{ .keyterms }}.
// Поддерживаются условия и фильтры значений:
//
//	{{ if .title }}Title: {{ .title }}{{ end }}
//	{{ .text | truncate 2000 }}
//
// Обращение к полю, отсутствующему в fields — MissingFieldError с
// именем поля (permanent класс, не повторяется), а не молчаливая
// пустая подстановка.
func Render(body string, fields map[string]any) (string, error) {
	t, err := template.New("").
		Funcs(templateFuncs).
		Option("missingkey=error").
		Parse(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	if fields == nil {
		fields = map[string]any{}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, fields); err != nil {
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			return "", &MissingFieldError{Field: m[1]}
		}
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только в тестах.
func MustRender(body string, fields map[string]any) string {
	result, err := Render(body, fields)
	if err != nil {
		panic(err)
	}
	return result
}
