package convert

import (
	"strconv"
	"strings"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const storageExtensions = blackfriday.CommonExtensions &^ blackfriday.Autolink

// StorageMarkdown converts between XHTML storage markup and markdown. Headings,
// paragraphs, line breaks, emphasis, code and lists survive a round trip; other
// markup is reduced to its text.
type StorageMarkdown struct{}

func (StorageMarkdown) ToRemote(local string) string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{Flags: blackfriday.UseXHTML})
	out := blackfriday.Run([]byte(local), blackfriday.WithExtensions(storageExtensions), blackfriday.WithRenderer(renderer))
	return strings.TrimSpace(string(out))
}

func (StorageMarkdown) ToLocal(remote string) string {
	w := &mdWriter{}
	z := html.NewTokenizer(strings.NewReader(remote))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or malformed markup, either way keep what was decoded
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			w.text(tok.Data)
		case html.StartTagToken, html.SelfClosingTagToken:
			w.open(tok.DataAtom)
		case html.EndTagToken:
			w.close(tok.DataAtom)
		}
	}
	return w.String()
}

type mdWriter struct {
	block  strings.Builder
	blocks []string
	lists  []atom.Atom
	items  []int
	inPre  bool
}

func (w *mdWriter) text(s string) {
	if w.inPre {
		w.block.WriteString(s)
		return
	}
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		w.space()
		return
	}
	if startsWithSpace(s) {
		w.space()
	}
	w.block.WriteString(collapsed)
	if endsWithSpace(s) {
		w.space()
	}
}

// space writes a single separator unless the block is empty or already ends in whitespace.
func (w *mdWriter) space() {
	cur := w.block.String()
	if cur == "" || strings.HasSuffix(cur, " ") || strings.HasSuffix(cur, "\n") {
		return
	}
	w.block.WriteByte(' ')
}

func (w *mdWriter) newline() {
	cur := strings.TrimRight(w.block.String(), " ")
	w.block.Reset()
	w.block.WriteString(cur)
	w.block.WriteByte('\n')
}

func (w *mdWriter) open(a atom.Atom) {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.flush()
		w.block.WriteString(strings.Repeat("#", headingLevel(a)) + " ")
	case atom.P, atom.Div, atom.Blockquote:
		if len(w.lists) == 0 {
			w.flush()
		}
	case atom.Br:
		w.newline()
	case atom.Strong, atom.B:
		w.block.WriteString("**")
	case atom.Em, atom.I:
		w.block.WriteString("*")
	case atom.Code:
		if !w.inPre {
			w.block.WriteString("`")
		}
	case atom.Pre:
		w.flush()
		w.inPre = true
		w.block.WriteString("```\n")
	case atom.Ul, atom.Ol:
		if len(w.lists) == 0 {
			w.flush()
		}
		w.lists = append(w.lists, a)
		w.items = append(w.items, 0)
	case atom.Li:
		if w.block.Len() > 0 {
			w.newline()
		}
		depth := max(len(w.lists)-1, 0)
		w.block.WriteString(strings.Repeat("  ", depth))
		if len(w.lists) > 0 && w.lists[depth] == atom.Ol {
			w.items[depth]++
			w.block.WriteString(strconv.Itoa(w.items[depth]) + ". ")
		} else {
			w.block.WriteString("- ")
		}
	}
}

func (w *mdWriter) close(a atom.Atom) {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.flush()
	case atom.P, atom.Div, atom.Blockquote:
		if len(w.lists) == 0 {
			w.flush()
		}
	case atom.Strong, atom.B:
		w.block.WriteString("**")
	case atom.Em, atom.I:
		w.block.WriteString("*")
	case atom.Code:
		if !w.inPre {
			w.block.WriteString("`")
		}
	case atom.Pre:
		if !strings.HasSuffix(w.block.String(), "\n") {
			w.block.WriteByte('\n')
		}
		w.block.WriteString("```")
		w.inPre = false
		w.flush()
	case atom.Ul, atom.Ol:
		if n := len(w.lists); n > 0 {
			w.lists = w.lists[:n-1]
			w.items = w.items[:n-1]
		}
		if len(w.lists) == 0 {
			w.flush()
		}
	}
}

func (w *mdWriter) flush() {
	lines := strings.Split(w.block.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	w.block.Reset()
	if s := strings.Trim(strings.Join(lines, "\n"), "\n "); s != "" {
		w.blocks = append(w.blocks, s)
	}
}

func (w *mdWriter) String() string {
	w.flush()
	if len(w.blocks) == 0 {
		return ""
	}
	return strings.Join(w.blocks, "\n\n") + "\n"
}

func headingLevel(a atom.Atom) int {
	return int(a.String()[1] - '0')
}

func startsWithSpace(s string) bool {
	return s != "" && strings.TrimLeft(s, " \t\r\n") != s
}

func endsWithSpace(s string) bool {
	return s != "" && strings.TrimRight(s, " \t\r\n") != s
}
