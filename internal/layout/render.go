package layout

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"io"
	"slices"
	"sort"
	"strings"
	"unicode"
)

//go:embed page.html
var pageHTML string

var pageTmpl = template.Must(template.New("page").Funcs(template.FuncMap{
	"json":     toJSON,
	"style":    style,
	"selected": selected,
}).Parse(pageHTML))

// Render writes the page as a standalone HTML document.
func Render(w io.Writer, p *Page) error {
	return pageTmpl.Execute(w, p)
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// style turns {"minHeight": "520px"} into "min-height: 520px".
func style(m map[string]string) template.CSS {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		for _, r := range k {
			if unicode.IsUpper(r) {
				b.WriteByte('-')
				r = unicode.ToLower(r)
			}
			b.WriteRune(r)
		}
		b.WriteString(": ")
		b.WriteString(m[k])
	}
	return template.CSS(b.String())
}

// selected reports whether option value v is part of the control value cur,
// which is either a single string or a list.
func selected(cur any, v string) bool {
	switch c := cur.(type) {
	case string:
		return c == v
	case []string:
		return slices.Contains(c, v)
	}
	return false
}
