// Package timeexpr turns raw reminder commands into typed intents.
//
// The grammar is keyword driven and case-insensitive:
//
//	add [stream: S topic: T] (in N UNIT | at DD/MM/YYYY HH:MM) [repeat every N UNIT] TITLE
//	remove ID
//	list
//	repeat ID every N UNIT
//	multiremind ID RECIPIENTS...
//	help | ? | halp
//
// Input that fits none of these yields a *ParseError; nothing is partially applied.
package timeexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"remindbot/internal/domain"
)

type Kind int

const (
	KindAdd Kind = iota + 1
	KindRemove
	KindList
	KindRepeat
	KindMultiRemind
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindList:
		return "list"
	case KindRepeat:
		return "repeat"
	case KindMultiRemind:
		return "multiremind"
	case KindHelp:
		return "help"
	}
	return "unknown"
}

// MomentLayout is the only accepted absolute form.
const MomentLayout = "02/01/2006 15:04"

// Moment is an absolute date and time exactly as written, "DD/MM/YYYY HH:MM".
// Calendar validity is checked when it is resolved.
type Moment string

// Intent is a parsed command. Which fields are set depends on Kind.
type Intent struct {
	Kind        Kind
	ReminderID  int64
	Offset      *domain.Interval
	At          *Moment
	Repeat      *domain.Interval
	Destination *domain.Destination
	Title       string
	Recipients  []string
}

type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no command matches %q", e.Input)
}

var (
	intRe  = regexp.MustCompile(`^[+-]?[0-9]+$`)
	idRe   = regexp.MustCompile(`^[0-9]+$`)
	dateRe = regexp.MustCompile(`^[0-9]{2}/[0-9]{2}/[0-9]{4}$`)
	timeRe = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}$`)
)

type token struct {
	text       string
	start, end int
}

func tokenize(src string) []token {
	var toks []token
	start := -1
	for i, r := range src {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{text: src[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: src[start:], start: start, end: len(src)})
	}
	return toks
}

type parser struct {
	src  string
	toks []token
}

// Parse recognizes exactly one intent anchored at the start of input.
func Parse(input string) (Intent, error) {
	p := &parser{src: input, toks: tokenize(input)}
	in, ok := p.parse()
	if !ok {
		return Intent{}, &ParseError{Input: input}
	}
	return in, nil
}

func (p *parser) parse() (Intent, bool) {
	if len(p.toks) == 0 {
		return Intent{}, false
	}
	switch strings.ToLower(p.toks[0].text) {
	case "help", "?", "halp":
		return Intent{Kind: KindHelp}, true
	case "add":
		return p.parseAdd(1)
	case "remove":
		id, ok := p.id(1)
		if !ok || len(p.toks) != 2 {
			return Intent{}, false
		}
		return Intent{Kind: KindRemove, ReminderID: id}, true
	case "list":
		if len(p.toks) != 1 {
			return Intent{}, false
		}
		return Intent{Kind: KindList}, true
	case "repeat":
		id, ok := p.id(1)
		if !ok || !p.keyword(2, "every") {
			return Intent{}, false
		}
		iv, next, ok := p.interval(3)
		if !ok || next != len(p.toks) {
			return Intent{}, false
		}
		return Intent{Kind: KindRepeat, ReminderID: id, Repeat: &iv}, true
	case "multiremind":
		id, ok := p.id(1)
		if !ok || len(p.toks) < 3 {
			return Intent{}, false
		}
		recipients := ParseRecipients(p.rest(2))
		if len(recipients) == 0 {
			return Intent{}, false
		}
		return Intent{Kind: KindMultiRemind, ReminderID: id, Recipients: recipients}, true
	}
	return Intent{}, false
}

func (p *parser) parseAdd(pos int) (Intent, bool) {
	streamStart, ok := p.prefixed(pos, "stream:")
	if !ok {
		in, ok := p.parseSchedule(pos)
		in.Kind = KindAdd
		return in, ok
	}

	topicIdx := -1
	topicStart := 0
	for i := pos + 1; i < len(p.toks); i++ {
		if s, ok := p.prefixed(i, "topic:"); ok {
			topicIdx, topicStart = i, s
			break
		}
	}
	if topicIdx < 0 {
		return Intent{}, false
	}
	stream := strings.TrimSpace(p.src[streamStart:p.toks[topicIdx].start])
	if stream == "" {
		return Intent{}, false
	}

	// The topic runs up to the first "in"/"at" that starts a complete schedule.
	for i := topicIdx + 1; i < len(p.toks); i++ {
		if !p.keyword(i, "in") && !p.keyword(i, "at") {
			continue
		}
		topic := strings.TrimSpace(p.src[topicStart:p.toks[i].start])
		if topic == "" {
			continue
		}
		in, ok := p.parseSchedule(i)
		if !ok {
			continue
		}
		in.Kind = KindAdd
		in.Destination = &domain.Destination{Stream: stream, Topic: topic}
		return in, true
	}
	return Intent{}, false
}

// parseSchedule handles TIMESPEC [repeat every INTERVAL] TITLE starting at pos.
func (p *parser) parseSchedule(pos int) (Intent, bool) {
	var in Intent
	switch {
	case p.keyword(pos, "in"):
		iv, next, ok := p.interval(pos + 1)
		if !ok {
			return Intent{}, false
		}
		in.Offset = &iv
		pos = next
	case p.keyword(pos, "at"):
		if pos+2 >= len(p.toks) {
			return Intent{}, false
		}
		d, t := p.toks[pos+1].text, p.toks[pos+2].text
		if !dateRe.MatchString(d) || !timeRe.MatchString(t) {
			return Intent{}, false
		}
		m := Moment(d + " " + t)
		in.At = &m
		pos += 3
	default:
		return Intent{}, false
	}

	if p.keyword(pos, "repeat") && p.keyword(pos+1, "every") {
		iv, next, ok := p.interval(pos + 2)
		if !ok {
			return Intent{}, false
		}
		in.Repeat = &iv
		pos = next
	}

	if pos >= len(p.toks) {
		return Intent{}, false
	}
	in.Title = p.rest(pos)
	return in, in.Title != ""
}

func (p *parser) interval(pos int) (domain.Interval, int, bool) {
	if pos+1 >= len(p.toks) || !intRe.MatchString(p.toks[pos].text) {
		return domain.Interval{}, pos, false
	}
	n, err := strconv.ParseInt(p.toks[pos].text, 10, 32)
	if err != nil {
		return domain.Interval{}, pos, false
	}
	u, ok := domain.ParseUnit(p.toks[pos+1].text)
	if !ok {
		return domain.Interval{}, pos, false
	}
	return domain.Interval{Value: int(n), Unit: u}, pos + 2, true
}

func (p *parser) id(pos int) (int64, bool) {
	if pos >= len(p.toks) || !idRe.MatchString(p.toks[pos].text) {
		return 0, false
	}
	n, err := strconv.ParseInt(p.toks[pos].text, 10, 64)
	return n, err == nil
}

func (p *parser) keyword(pos int, kw string) bool {
	return pos < len(p.toks) && strings.EqualFold(p.toks[pos].text, kw)
}

// prefixed reports whether token pos starts with kw ("stream:" or "stream:Name")
// and returns the source offset right after the keyword.
func (p *parser) prefixed(pos int, kw string) (int, bool) {
	if pos >= len(p.toks) {
		return 0, false
	}
	t := p.toks[pos]
	if len(t.text) < len(kw) || !strings.EqualFold(t.text[:len(kw)], kw) {
		return 0, false
	}
	return t.start + len(kw), true
}

func (p *parser) rest(pos int) string {
	if pos >= len(p.toks) {
		return ""
	}
	return strings.TrimSpace(p.src[p.toks[pos].start:])
}
