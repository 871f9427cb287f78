package pdf

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
)

// TJ adjustments below this (in thousandths of a text space unit) are read
// as a word gap.
const wordGapThreshold = -250

type operandKind int

const (
	operandNumber operandKind = iota
	operandString
	operandName
	operandArray
)

type operand struct {
	kind  operandKind
	num   float64
	str   []byte
	items []operand
}

// contentText walks a page content stream and collects the strings shown by
// the text operators Tj, TJ, ' and ". Positioning operators become spaces
// or line breaks. Glyph codes are read as single bytes, or UTF-16BE when the
// string carries a byte order mark.
func contentText(stream []byte) string {
	s := &contentScanner{data: stream}
	var (
		out     strings.Builder
		line    strings.Builder
		stack   []operand
		arrays  [][]operand
		lastY   float64
		haveY   bool
		newline = func() {
			if text := strings.TrimRight(line.String(), " "); text != "" {
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(text)
			}
			line.Reset()
		}
		space = func() {
			if line.Len() > 0 && !strings.HasSuffix(line.String(), " ") {
				line.WriteByte(' ')
			}
		}
		push = func(op operand) {
			if n := len(arrays); n > 0 {
				arrays[n-1] = append(arrays[n-1], op)
				return
			}
			stack = append(stack, op)
		}
	)

	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		switch tok.kind {
		case tokenString:
			push(operand{kind: operandString, str: tok.value})
		case tokenNumber:
			n, _ := strconv.ParseFloat(string(tok.value), 64)
			push(operand{kind: operandNumber, num: n})
		case tokenName:
			push(operand{kind: operandName, str: tok.value})
		case tokenArrayStart:
			arrays = append(arrays, nil)
		case tokenArrayEnd:
			if n := len(arrays); n > 0 {
				items := arrays[n-1]
				arrays = arrays[:n-1]
				push(operand{kind: operandArray, items: items})
			}
		case tokenOperator:
			switch string(tok.value) {
			case "Tj":
				if op, ok := lastOperand(stack, operandString); ok {
					line.WriteString(decodeTextString(op.str))
				}
			case "TJ":
				if op, ok := lastOperand(stack, operandArray); ok {
					for _, item := range op.items {
						switch item.kind {
						case operandString:
							line.WriteString(decodeTextString(item.str))
						case operandNumber:
							if item.num < wordGapThreshold {
								space()
							}
						}
					}
				}
			case "'", "\"":
				newline()
				if op, ok := lastOperand(stack, operandString); ok {
					line.WriteString(decodeTextString(op.str))
				}
			case "T*":
				newline()
			case "Td", "TD":
				if len(stack) >= 2 && stack[len(stack)-1].num != 0 {
					newline()
				} else {
					space()
				}
			case "Tm":
				if len(stack) >= 6 {
					y := stack[len(stack)-1].num
					if haveY && y != lastY {
						newline()
					} else {
						space()
					}
					lastY, haveY = y, true
				}
			case "BI":
				s.skipInlineImage()
			}
			stack = stack[:0]
			arrays = arrays[:0]
		}
	}
	newline()

	return out.String()
}

func lastOperand(stack []operand, kind operandKind) (operand, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].kind == kind {
			return stack[i], true
		}
	}
	return operand{}, false
}

func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		units := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		switch {
		case c == '\n' || c == '\r' || c == '\t':
			runes = append(runes, ' ')
		case c < 0x20:
		default:
			runes = append(runes, rune(c))
		}
	}
	return string(runes)
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenString
	tokenName
	tokenArrayStart
	tokenArrayEnd
	tokenOperator
	tokenOther
)

type token struct {
	kind  tokenKind
	value []byte
}

type contentScanner struct {
	data []byte
	pos  int
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *contentScanner) next() (token, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isWhitespace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return token{kind: tokenString, value: s.literalString()}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return token{kind: tokenOther}, true
			}
			s.pos++
			return token{kind: tokenString, value: s.hexString()}, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return token{kind: tokenOther}, true
		case c == '[':
			s.pos++
			return token{kind: tokenArrayStart}, true
		case c == ']':
			s.pos++
			return token{kind: tokenArrayEnd}, true
		case c == '/':
			s.pos++
			return token{kind: tokenName, value: s.regular()}, true
		case c == '{' || c == '}' || c == ')':
			s.pos++
		case (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.':
			return token{kind: tokenNumber, value: s.regular()}, true
		default:
			return token{kind: tokenOperator, value: s.regular()}, true
		}
	}
	return token{}, false
}

func (s *contentScanner) regular() []byte {
	start := s.pos
	for s.pos < len(s.data) && !isWhitespace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		s.pos++
	}
	return s.data[start:s.pos]
}

func (s *contentScanner) literalString() []byte {
	var buf bytes.Buffer
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes()
			}
			buf.WriteByte(c)
		case '\\':
			if s.pos >= len(s.data) {
				return buf.Bytes()
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

func (s *contentScanner) hexString() []byte {
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if isWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage moves past the binary data of a BI ... ID ... EI block.
func (s *contentScanner) skipInlineImage() {
	idx := bytes.Index(s.data[s.pos:], []byte("ID"))
	if idx < 0 {
		s.pos = len(s.data)
		return
	}
	s.pos += idx + 2
	for s.pos < len(s.data) {
		idx := bytes.Index(s.data[s.pos:], []byte("EI"))
		if idx < 0 {
			s.pos = len(s.data)
			return
		}
		end := s.pos + idx
		before := end == 0 || isWhitespace(s.data[end-1])
		after := end+2 >= len(s.data) || isWhitespace(s.data[end+2])
		s.pos = end + 2
		if before && after {
			return
		}
	}
}
