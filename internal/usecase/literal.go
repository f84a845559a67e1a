package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// parseListLiteral decodes dataset cells holding a list, written either as
// JSON or as a Python repr ("[{'role': 'user', 'content': '...'}]").
func parseListLiteral(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}

	p := &literalParser{src: raw}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing data")
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("literal at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) && strings.ContainsRune(" \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *literalParser) value() (any, error) {
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end")
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.list('[', ']')
	case c == '(':
		return p.list('(', ')')
	case c == '{':
		return p.dict()
	case c == '\'' || c == '"':
		return p.str()
	case (c == 'u' || c == 'r') && p.pos+1 < len(p.src) && (p.src[p.pos+1] == '\'' || p.src[p.pos+1] == '"'):
		raw := c == 'r'
		p.pos++
		if raw {
			return p.rawStr()
		}
		return p.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *literalParser) list(open, close byte) ([]any, error) {
	p.pos++ // open
	items := []any{}
	for {
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == close {
			p.pos++
			return items, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated %c", open)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case close:
			p.pos++
			return items, nil
		default:
			return nil, p.errorf("expected , or %c", close)
		}
	}
}

func (p *literalParser) dict() (map[string]any, error) {
	p.pos++ // {
	m := map[string]any{}
	for {
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '}' {
			p.pos++
			return m, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, p.errorf("expected :")
		}
		p.pos++
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		m[fmt.Sprint(k)] = v

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated {")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return m, nil
		default:
			return nil, p.errorf("expected , or }")
		}
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			if err := p.escape(&sb); err != nil {
				return "", err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) rawStr() (string, error) {
	quote := p.src[p.pos]
	start := p.pos + 1
	end := strings.IndexByte(p.src[start:], quote)
	if end < 0 {
		return "", p.errorf("unterminated string")
	}
	p.pos = start + end + 1
	return p.src[start : start+end], nil
}

func (p *literalParser) escape(sb *strings.Builder) error {
	c := p.src[p.pos+1]
	p.pos += 2
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case '\n':
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+width > len(p.src) {
			return p.errorf("short \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil {
			return p.errorf("bad \\%c escape", c)
		}
		sb.WriteRune(rune(n))
		p.pos += width
	default:
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE_", p.src[p.pos]) >= 0 {
		p.pos++
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("bad number %q", text)
	}
	return f, nil
}

func (p *literalParser) keyword() (any, error) {
	for word, v := range map[string]any{"True": true, "False": false, "None": nil} {
		if strings.HasPrefix(p.src[p.pos:], word) {
			p.pos += len(word)
			return v, nil
		}
	}
	return nil, p.errorf("unexpected %q", p.src[p.pos])
}
