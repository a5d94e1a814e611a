package domain

// EventType tags an Event.
type EventType string

const (
	EventStart            EventType = "start"
	EventSelectJob        EventType = "select_job"
	EventAnswerScoping    EventType = "answer_scoping"
	EventConfirmChecklist EventType = "confirm_checklist"
	EventSkipChecklist    EventType = "skip_checklist"
	EventAddProducts      EventType = "add_products"
	EventSkipProducts     EventType = "skip_products"
	EventSetLabor         EventType = "set_labor"
	EventSetMarkup        EventType = "set_markup"
	EventFinalize         EventType = "finalize"
	EventStartNew         EventType = "start_new"
	EventUnclear          EventType = "unclear"
)

var allEventTypes = []EventType{
	EventStart,
	EventSelectJob,
	EventAnswerScoping,
	EventConfirmChecklist,
	EventSkipChecklist,
	EventAddProducts,
	EventSkipProducts,
	EventSetLabor,
	EventSetMarkup,
	EventFinalize,
	EventStartNew,
	EventUnclear,
}

// AllEventTypes returns every event tag in declaration order.
func AllEventTypes() []EventType {
	out := make([]EventType, len(allEventTypes))
	copy(out, allEventTypes)
	return out
}

// Event is the closed set of typed messages produced by the parser.
// Only types in this package can implement it.
type Event interface {
	Type() EventType
	sealed()
}

type StartEvent struct{}

// SelectJobEvent chooses the job type. Doc is filled in by the coordinator
// before actions run; it stays nil when no guidance is available.
type SelectJobEvent struct {
	JobType string
	Doc     *TradecraftDoc
}

type AnswerScopingEvent struct {
	QuestionID string
	Answer     string
}

// ConfirmChecklistEvent confirms the listed categories. An empty list
// confirms every pending item.
type ConfirmChecklistEvent struct {
	Categories []string
}

type SkipChecklistEvent struct{}

// AddProductsEvent selects pending products. An empty list selects all.
type AddProductsEvent struct {
	Selections []ProductSelection
	// Products carries catalog entries picked outside the pending list
	// (the "add more" path from review).
	Products []ProductMatch
}

type SkipProductsEvent struct{}

type SetLaborEvent struct {
	Hours float64
	Rate  *float64
}

type SetMarkupEvent struct {
	Percent float64
}

type FinalizeEvent struct{}

type StartNewEvent struct{}

// UnclearEvent is the catch-all. Text is the original input so the clarify
// step can retry it; Message and Options come from delegated interpretation.
type UnclearEvent struct {
	Text    string
	Message string
	Options []string
}

func (StartEvent) Type() EventType            { return EventStart }
func (SelectJobEvent) Type() EventType        { return EventSelectJob }
func (AnswerScopingEvent) Type() EventType    { return EventAnswerScoping }
func (ConfirmChecklistEvent) Type() EventType { return EventConfirmChecklist }
func (SkipChecklistEvent) Type() EventType    { return EventSkipChecklist }
func (AddProductsEvent) Type() EventType      { return EventAddProducts }
func (SkipProductsEvent) Type() EventType     { return EventSkipProducts }
func (SetLaborEvent) Type() EventType         { return EventSetLabor }
func (SetMarkupEvent) Type() EventType        { return EventSetMarkup }
func (FinalizeEvent) Type() EventType         { return EventFinalize }
func (StartNewEvent) Type() EventType         { return EventStartNew }
func (UnclearEvent) Type() EventType          { return EventUnclear }

func (StartEvent) sealed()            {}
func (SelectJobEvent) sealed()        {}
func (AnswerScopingEvent) sealed()    {}
func (ConfirmChecklistEvent) sealed() {}
func (SkipChecklistEvent) sealed()    {}
func (AddProductsEvent) sealed()      {}
func (SkipProductsEvent) sealed()     {}
func (SetLaborEvent) sealed()         {}
func (SetMarkupEvent) sealed()        {}
func (FinalizeEvent) sealed()         {}
func (StartNewEvent) sealed()         {}
func (UnclearEvent) sealed()          {}
