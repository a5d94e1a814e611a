package runtime

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/quotecraft/drew/pkg/domain"
)

var (
	globalResetPhrases = phraseSet("start over", "start new quote", "start a new quote", "restart", "reset", "start again", "begin again")
	startPhrases       = phraseSet("start", "hi", "hello", "hey", "yes", "let's go", "lets go", "begin", "get started", "ok", "okay", "sure", "new quote", "go")
	affirmPhrases      = phraseSet("yes", "y", "yep", "yeah", "ok", "okay", "sure", "confirm", "correct", "all", "all of them", "looks good", "sounds good", "looks right", "that's right", "confirm all", "go ahead")
	skipPhrases        = phraseSet("no", "n", "nope", "skip", "none", "no thanks", "not now", "skip it", "skip checklist", "skip products", "skip this", "nothing")
	addAllPhrases      = phraseSet("add all", "all", "add them all", "add everything", "everything", "all of them", "yes", "y", "yep", "yeah", "ok", "okay", "sure", "looks good")
	finalizePhrases    = phraseSet("finalize", "finalize quote", "finalise", "done", "finish", "complete", "looks good", "yes", "y", "confirm", "save", "save quote", "approve", "that's it", "thats it", "ok", "okay")
	newQuotePhrases    = phraseSet("new quote", "start", "new", "another", "another quote", "yes", "start new", "start a new one")
	zeroPhrases        = phraseSet("no markup", "none", "skip", "no labor", "no labour", "zero", "no", "nothing", "n/a", "na", "no hours")
)

// builtinJobAliases maps trade jargon onto job-type keys. An alias only
// applies when its key is among the known job types.
var builtinJobAliases = map[string]string{
	"panel":           "panel_upgrade",
	"service upgrade": "panel_upgrade",
	"breaker box":     "panel_upgrade",
	"ev charger":      "ev_charger",
	"car charger":     "ev_charger",
	"tesla charger":   "ev_charger",
	"level 2 charger": "ev_charger",
	"water heater":    "water_heater",
	"hot water":       "water_heater",
	"outlet":          "outlet_install",
	"receptacle":      "outlet_install",
	"recessed":        "recessed_lighting",
	"can lights":      "recessed_lighting",
	"pot lights":      "recessed_lighting",
}

var jobStopWords = phraseSet("a", "an", "the", "i", "im", "need", "to", "quote", "for", "my", "want", "job", "do", "please",
	"some", "and", "of", "on", "in", "we", "me", "it", "is", "this", "that", "with", "new", "get", "like", "would", "id", "can", "you")

var numberWords = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4", "five": "5", "six": "6",
	"seven": "7", "eight": "8", "nine": "9", "ten": "10", "eleven": "11", "twelve": "12",
}

var (
	laborPattern = regexp.MustCompile(
		`^(?:about |around |roughly |approx |approximately )?(\d+(?:\.\d+)?) ?(?:h|hr|hrs|hour|hours)?(?: of labou?r)?` +
			`(?: at (\d+(?:\.\d+)?) ?(?:h|hr|hour|per hour|an hour|hourly|ph)?)?$`)
	markupPattern = regexp.MustCompile(`^(?:markup (?:of )?)?(\d+(?:\.\d+)?) ?(?:%|percent|pct)?(?: markup)?$`)
	indexToken    = regexp.MustCompile(`^\d+$`)
)

var indexFiller = phraseSet("add", "and", "item", "items", "number", "numbers", "only", "just", "please", "the", "products", "product")

// Parser turns one user turn into exactly one event, cheapest strategy first.
type Parser struct {
	coordinator *Coordinator
	logger      *slog.Logger
}

// NewParser creates a parser delegating open-ended input through coordinator.
func NewParser(coordinator *Coordinator, logger *slog.Logger) *Parser {
	return &Parser{coordinator: coordinator, logger: logger}
}

// Parse runs the cascade: global override, structured command, state-specific
// deterministic parsing, delegated interpretation, then the catch-all unclear.
func (p *Parser) Parse(ctx context.Context, state domain.ConversationState, input domain.Input, c *domain.Context) domain.Event {
	text := strings.TrimSpace(input.Text)

	if IsGlobalReset(text) {
		return domain.StartNewEvent{}
	}

	if input.Command != nil {
		ev, known, err := DecodeCommand(input.Command)
		if err != nil {
			p.logger.Warn("malformed command", "command", input.Command.Name, "state", state, "err", err)
			return domain.UnclearEvent{Text: text}
		}
		if known {
			return ev
		}
		p.logger.Debug("unknown command, falling back to text", "command", input.Command.Name, "state", state)
	}

	jobs := p.jobsFunc(ctx)
	if ev, ok := ParseDeterministic(state, text, c, jobs); ok {
		return ev
	}

	if text != "" && (state == domain.StateGreeting || state == domain.StateJobSelection) {
		return p.interpretJob(ctx, text, jobs())
	}

	return domain.UnclearEvent{Text: text}
}

// jobsFunc defers the job-type listing until a parse path needs it.
func (p *Parser) jobsFunc(ctx context.Context) func() []domain.JobOption {
	var (
		loaded bool
		jobs   []domain.JobOption
	)
	return func() []domain.JobOption {
		if !loaded {
			jobs = p.coordinator.JobOptions(ctx)
			loaded = true
		}
		return jobs
	}
}

func (p *Parser) interpretJob(ctx context.Context, text string, jobs []domain.JobOption) domain.Event {
	res, ok := p.coordinator.InterpretJob(ctx, text, jobs)
	if !ok {
		return domain.UnclearEvent{Text: text}
	}
	if res.Resolved && knownJob(res.JobType, jobs) {
		return domain.SelectJobEvent{JobType: res.JobType}
	}
	return domain.UnclearEvent{Text: text, Message: res.Message, Options: res.Options}
}

// IsGlobalReset reports whether text is one of the phrases that reset the
// conversation from any state.
func IsGlobalReset(text string) bool {
	return globalResetPhrases[normalize(text)]
}

// ParseDeterministic applies the rule-based parser of state to text. It never
// calls a collaborator. ok is false when no rule matched.
func ParseDeterministic(state domain.ConversationState, text string, c *domain.Context, jobs func() []domain.JobOption) (domain.Event, bool) {
	n := normalize(text)
	if n == "" {
		return nil, false
	}

	switch state {
	case domain.StateGreeting:
		if startPhrases[n] {
			return domain.StartEvent{}, true
		}
		if key, ok := MatchJob(text, jobs()); ok {
			return domain.SelectJobEvent{JobType: key}, true
		}

	case domain.StateJobSelection:
		if key, ok := MatchJob(text, jobs()); ok {
			return domain.SelectJobEvent{JobType: key}, true
		}

	case domain.StateScoping:
		q, ok := c.CurrentQuestion()
		if !ok {
			return nil, false
		}
		for _, reply := range q.QuickReplies {
			if normalize(reply) == n {
				return domain.AnswerScopingEvent{QuestionID: q.ID, Answer: reply}, true
			}
		}
		return domain.AnswerScopingEvent{QuestionID: q.ID, Answer: strings.TrimSpace(text)}, true

	case domain.StateChecklist:
		if affirmPhrases[n] {
			return domain.ConfirmChecklistEvent{}, true
		}
		if skipPhrases[n] {
			return domain.SkipChecklistEvent{}, true
		}
		if cats := mentionedCategories(n, c.PendingChecklist); len(cats) > 0 {
			return domain.ConfirmChecklistEvent{Categories: cats}, true
		}

	case domain.StateProductSelection:
		if addAllPhrases[n] {
			return domain.AddProductsEvent{}, true
		}
		if skipPhrases[n] {
			return domain.SkipProductsEvent{}, true
		}
		if sels, ok := selectedIndexes(n, c.PendingProducts); ok {
			return domain.AddProductsEvent{Selections: sels}, true
		}
		if sels := mentionedProducts(n, c.PendingProducts); len(sels) > 0 {
			return domain.AddProductsEvent{Selections: sels}, true
		}

	case domain.StateLabor:
		if hours, rate, ok := ParseLabor(text); ok {
			return domain.SetLaborEvent{Hours: hours, Rate: rate}, true
		}

	case domain.StateMarkup:
		if pct, ok := ParseMarkup(text); ok {
			return domain.SetMarkupEvent{Percent: pct}, true
		}

	case domain.StateReview:
		if finalizePhrases[n] {
			return domain.FinalizeEvent{}, true
		}

	case domain.StateDone:
		if newQuotePhrases[n] {
			return domain.StartNewEvent{}, true
		}
	}
	return nil, false
}

// ParseLabor accepts bare numbers, "4 hours", "4.5 hrs", an optional
// "at $75/hr" rate, and the zero phrases. Negative hours or rates are
// rejected.
func ParseLabor(text string) (hours float64, rate *float64, ok bool) {
	n := normalize(text)
	if zeroPhrases[n] {
		return 0, nil, true
	}
	if hasNegative(n) {
		return 0, nil, false
	}
	m := laborPattern.FindStringSubmatch(wordsToDigits(n))
	if m == nil {
		return 0, nil, false
	}
	hours, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, nil, false
	}
	if m[2] != "" {
		r, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, nil, false
		}
		rate = &r
	}
	return hours, rate, true
}

// ParseMarkup accepts "20", "20%", "20 percent" and the zero phrases.
// Negative percentages are rejected.
func ParseMarkup(text string) (float64, bool) {
	n := normalize(text)
	if zeroPhrases[n] {
		return 0, true
	}
	if hasNegative(n) {
		return 0, false
	}
	m := markupPattern.FindStringSubmatch(wordsToDigits(n))
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// MatchJob resolves free text to a job-type key: exact key, title or alias
// first, then the longest contained phrase, then a unique keyword overlap.
func MatchJob(text string, jobs []domain.JobOption) (string, bool) {
	n := normalize(text)
	if n == "" || len(jobs) == 0 {
		return "", false
	}

	phrases := jobPhrases(jobs)

	for _, jp := range phrases {
		if n == jp.phrase {
			return jp.key, true
		}
	}

	best, bestLen, tie := "", 0, false
	padded := " " + n + " "
	for _, jp := range phrases {
		if !strings.Contains(padded, " "+jp.phrase+" ") {
			continue
		}
		switch {
		case len(jp.phrase) > bestLen:
			best, bestLen, tie = jp.key, len(jp.phrase), false
		case len(jp.phrase) == bestLen && jp.key != best:
			tie = true
		}
	}
	if best != "" && !tie {
		return best, true
	}

	words := significantWords(n)
	if len(words) == 0 {
		return "", false
	}
	bestScore := 0
	best, tie = "", false
	for _, job := range jobs {
		keywords := make(map[string]bool)
		for _, jp := range phrases {
			if jp.key != job.Key {
				continue
			}
			for w := range significantWords(jp.phrase) {
				keywords[w] = true
			}
		}
		score := 0
		for w := range words {
			if keywords[w] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = job.Key, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if best != "" && !tie {
		return best, true
	}
	return "", false
}

type jobPhrase struct {
	key    string
	phrase string
}

func jobPhrases(jobs []domain.JobOption) []jobPhrase {
	var out []jobPhrase
	known := make(map[string]bool, len(jobs))
	add := func(key, phrase string) {
		if p := normalize(phrase); p != "" {
			out = append(out, jobPhrase{key: key, phrase: p})
		}
	}
	for _, job := range jobs {
		known[job.Key] = true
		add(job.Key, job.Key)
		add(job.Key, job.Title)
		for _, a := range job.Aliases {
			add(job.Key, a)
		}
	}
	for alias, key := range builtinJobAliases {
		if known[key] {
			add(key, alias)
		}
	}
	return out
}

func knownJob(key string, jobs []domain.JobOption) bool {
	if key == "" {
		return false
	}
	if len(jobs) == 0 {
		return true
	}
	for _, j := range jobs {
		if j.Key == key {
			return true
		}
	}
	return false
}

func mentionedCategories(n string, pending []domain.ChecklistItem) []string {
	padded := " " + n + " "
	var cats []string
	for _, item := range pending {
		for _, name := range []string{item.Category, item.DisplayName} {
			p := normalize(name)
			if p != "" && strings.Contains(padded, " "+p+" ") {
				cats = append(cats, item.Category)
				break
			}
		}
	}
	return cats
}

// selectedIndexes parses lists such as "1, 3" or "add 2 and 4" into
// selections. Any index out of range rejects the whole list.
func selectedIndexes(n string, pending []domain.ProductMatch) ([]domain.ProductSelection, bool) {
	var sels []domain.ProductSelection
	seen := make(map[int]bool)
	for _, tok := range strings.Fields(n) {
		if indexFiller[tok] {
			continue
		}
		if !indexToken.MatchString(tok) {
			return nil, false
		}
		i, err := strconv.Atoi(tok)
		if err != nil || i < 1 || i > len(pending) {
			return nil, false
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		sels = append(sels, domain.ProductSelection{ProductID: pending[i-1].Product.ID})
	}
	return sels, len(sels) > 0
}

func mentionedProducts(n string, pending []domain.ProductMatch) []domain.ProductSelection {
	padded := " " + n + " "
	var sels []domain.ProductSelection
	for _, m := range pending {
		if p := normalize(m.Product.Name); p != "" && strings.Contains(padded, " "+p+" ") {
			sels = append(sels, domain.ProductSelection{ProductID: m.Product.ID})
		}
	}
	return sels
}

// normalize lower-cases, drops apostrophes and turns other punctuation into
// spaces. Decimal points between digits, a leading minus sign, '%' and '/'
// inside "n/a" survive; '@' reads as "at".
func normalize(s string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '%':
			b.WriteRune(r)
		case r == '\'' || r == '’':
		case r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		case r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) &&
			(i == 0 || !unicode.IsLetter(runes[i-1]) && !unicode.IsDigit(runes[i-1])):
			b.WriteRune(r)
		case r == '/' && i > 0 && i+1 < len(runes) && runes[i-1] == 'n' && runes[i+1] == 'a':
			b.WriteRune(r)
		case r == '@':
			b.WriteString(" at ")
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// hasNegative reports whether normalized text carries a signed number.
func hasNegative(n string) bool {
	return strings.Contains(n, "-")
}

func wordsToDigits(n string) string {
	fields := strings.Fields(n)
	for i, f := range fields {
		if d, ok := numberWords[f]; ok {
			fields[i] = d
		}
	}
	return strings.Join(fields, " ")
}

func significantWords(n string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(n) {
		if !jobStopWords[w] {
			out[w] = true
		}
	}
	return out
}

func phraseSet(phrases ...string) map[string]bool {
	out := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		out[normalize(p)] = true
	}
	return out
}
