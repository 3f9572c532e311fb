// Package markdown превращает пользовательский Markdown в безопасный HTML:
// рендеринг, подсветка блоков кода и обязательная очистка по белому списку.
package markdown

import (
	"bytes"
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// Белый список тегов и атрибутов. Все, что не перечислено, вырезается -
// в том числе разметка, которую добавляет подсветка кода, поэтому очистка
// всегда выполняется последним шагом.
var policy = newPolicy()

// strict вырезает вообще все теги; используется для проверки,
// остался ли в отрендеренном HTML хоть какой-то текст.
var strict = bluemonday.StrictPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"a", "abbr", "acronym", "b", "i", "em", "strong", "span",
		"blockquote", "code", "pre", "p", "br",
		"ol", "ul", "li",
		"h1", "h2", "h3",
		"img",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class", "style").Globally()
	p.AllowAttrs("href", "title", "rel", "target").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	return p
}

// Sanitize очищает HTML по белому списку. Идемпотентна:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// PlainText возвращает текстовое содержимое HTML без какой-либо разметки.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}

// Render превращает Markdown в безопасный HTML-фрагмент.
// Чистая функция: результат зависит только от входного текста.
func Render(raw string) string {
	unsafe := blackfriday.Run(
		[]byte(raw),
		blackfriday.WithRenderer(newRenderer()),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	)
	return Sanitize(string(unsafe))
}

// renderer перехватывает блоки кода и отдает их подсветке,
// остальные узлы рендерит стандартный HTMLRenderer.
type renderer struct {
	*blackfriday.HTMLRenderer
}

func newRenderer() *renderer {
	return &renderer{
		HTMLRenderer: blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
			Flags: blackfriday.CommonHTMLFlags,
		}),
	}
}

func (r *renderer) RenderNode(w io.Writer, node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
	if node.Type == blackfriday.CodeBlock {
		highlight(w, string(node.Literal), string(node.CodeBlockData.Info))
		return blackfriday.GoToNext
	}
	return r.HTMLRenderer.RenderNode(w, node, entering)
}

// highlight раскрашивает блок кода span-элементами с классами.
// Неизвестный язык определяется эвристикой; при любой ошибке лексера
// блок выводится как обычный экранированный текст, без ошибки.
func highlight(w io.Writer, source, lang string) {
	lexer := lexers.Get(strings.TrimSpace(lang))
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	it, err := chroma.Coalesce(lexer).Tokenise(nil, source)
	if err != nil {
		writePlainCode(w, source)
		return
	}

	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.Format(&buf, styles.Fallback, it); err != nil {
		writePlainCode(w, source)
		return
	}
	w.Write(buf.Bytes())
}

func writePlainCode(w io.Writer, source string) {
	io.WriteString(w, "<pre><code>")
	io.WriteString(w, html.EscapeString(source))
	io.WriteString(w, "</code></pre>\n")
}
