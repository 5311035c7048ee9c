package response

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taipm/agentrun/agent/tools"
)

// itemKind discriminates what an inline scan produced.
type itemKind int

const (
	itemText itemKind = iota
	itemTag
)

// scanItem is one unit the inline scanner resolved from the accumulating
// text: either a run of plain prose, or a fully parsed (possibly errored)
// tag invocation.
type scanItem struct {
	kind   itemKind
	text   string
	toolID string
	method string
	params map[string]interface{}
	err    error
}

// inlineScanner scans accumulating assistant text for registered tag
// names, tolerant of partial chunks: a tag opener that is not yet closed
// is held back until more text arrives. Only fully registered tag names
// are treated as markup; an unrecognized "<" is emitted as literal prose,
// matching free text that happens to contain an angle bracket.
type inlineScanner struct {
	bindings map[string]tools.InlineBinding
	buf      strings.Builder
	cursor   int
}

func newInlineScanner(bindings []tools.InlineBinding) *inlineScanner {
	index := make(map[string]tools.InlineBinding, len(bindings))
	for _, b := range bindings {
		index[b.Tag] = b
	}
	return &inlineScanner{bindings: index}
}

// Feed appends delta to the scanner's buffer and returns every scanItem
// that can now be resolved with certainty.
func (s *inlineScanner) Feed(delta string) []scanItem {
	s.buf.WriteString(delta)
	return s.scan()
}

// Flush is called at stream end: any text still held back (an
// unresolved potential tag opener) is emitted as plain prose since no
// more data will arrive to complete it.
func (s *inlineScanner) Flush() []scanItem {
	text := s.buf.String()
	if s.cursor >= len(text) {
		return nil
	}
	rest := text[s.cursor:]
	s.cursor = len(text)
	if rest == "" {
		return nil
	}
	return []scanItem{{kind: itemText, text: rest}}
}

func (s *inlineScanner) scan() []scanItem {
	var items []scanItem
	text := s.buf.String()

	for {
		rest := text[s.cursor:]
		ltIdx := strings.IndexByte(rest, '<')
		if ltIdx == -1 {
			if len(rest) > 0 {
				items = append(items, scanItem{kind: itemText, text: rest})
				s.cursor = len(text)
			}
			return items
		}
		if ltIdx > 0 {
			items = append(items, scanItem{kind: itemText, text: rest[:ltIdx]})
			s.cursor += ltIdx
			rest = text[s.cursor:]
		}

		name, nameLen, ok := readTagName(rest[1:])
		if !ok {
			// Not enough data yet to know the tag name; wait.
			return items
		}

		binding, known := s.bindings[name]
		if !known {
			// Not a registered tag: the '<' is literal prose.
			items = append(items, scanItem{kind: itemText, text: "<"})
			s.cursor++
			continue
		}

		afterName := rest[1+nameLen:]
		openEnd := findUnquotedGT(afterName)
		if openEnd == -1 {
			// Opening tag not yet closed; wait for more chunks.
			return items
		}
		attrsText := afterName[:openEnd]
		openTagLen := 1 + nameLen + openEnd + 1 // '<' + name + attrs + '>'

		trimmedAttrs := strings.TrimRight(attrsText, " \t\r\n")
		if strings.HasSuffix(trimmedAttrs, "/") {
			// Self-closing tag: <tag attr="v"/>
			attrsOnly := strings.TrimSuffix(trimmedAttrs, "/")
			params, err := extractParams(binding.Schema, attrsOnly, "")
			items = append(items, scanItem{kind: itemTag, toolID: binding.ToolID, method: binding.MethodName, params: params, err: err})
			s.cursor += openTagLen
			continue
		}

		closeTag := "</" + name + ">"
		afterOpen := rest[openTagLen:]
		closeIdx := strings.Index(afterOpen, closeTag)
		if closeIdx == -1 {
			// Closing tag hasn't arrived yet; wait.
			return items
		}
		content := afterOpen[:closeIdx]
		params, err := extractParams(binding.Schema, attrsText, content)
		items = append(items, scanItem{kind: itemTag, toolID: binding.ToolID, method: binding.MethodName, params: params, err: err})
		s.cursor += openTagLen + closeIdx + len(closeTag)
	}
}

// readTagName reads the tag name starting right after '<'. Returns
// ok=false if the name hasn't terminated yet (no whitespace, '>' or '/'
// seen), meaning the caller should wait for more data.
func readTagName(s string) (name string, length int, ok bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '>' || c == '/' {
			return s[:i], i, true
		}
	}
	return "", 0, false
}

// findUnquotedGT returns the index of the first '>' that is not inside a
// single- or double-quoted attribute value, or -1 if none is present yet.
func findUnquotedGT(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

var attrRegex = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// parseAttrs extracts every attr="value" / attr='value' pair from a tag's
// attribute text into a map.
func parseAttrs(attrsText string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(attrsText, -1) {
		value := m[2]
		if value == "" && m[3] != "" {
			value = m[3]
		}
		out[m[1]] = value
	}
	return out
}

// extractElement finds the text content of a nested element at a
// relative, possibly multi-segment ("a/b") path within content.
func extractElement(content, path string) (string, bool) {
	cur := content
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		open := "<" + seg + ">"
		close := "</" + seg + ">"
		start := strings.Index(cur, open)
		if start == -1 {
			return "", false
		}
		start += len(open)
		end := strings.Index(cur[start:], close)
		if end == -1 {
			return "", false
		}
		cur = cur[start : start+end]
	}
	return cur, true
}

// extractParams resolves every parameter a tool method's InlineMarkupSchema
// declares from the parsed tag's attributes and inner content.
func extractParams(schema tools.InlineMarkupSchema, attrsText, content string) (map[string]interface{}, error) {
	attrs := parseAttrs(attrsText)
	params := make(map[string]interface{}, len(schema.Params))
	for name, src := range schema.Params {
		switch src.Kind {
		case tools.ParamFromAttribute:
			v, ok := attrs[name]
			if !ok {
				return nil, fmt.Errorf("inline tag <%s>: missing required attribute %q", schema.Tag, name)
			}
			params[name] = v
		case tools.ParamFromContent:
			params[name] = content
		case tools.ParamFromElement:
			v, ok := extractElement(content, src.Path)
			if !ok {
				return nil, fmt.Errorf("inline tag <%s>: missing element at %q", schema.Tag, src.Path)
			}
			params[name] = v
		default:
			return nil, fmt.Errorf("inline tag <%s>: unknown param source kind %q", schema.Tag, src.Kind)
		}
	}
	return params, nil
}
