package runtime

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quotecraft/drew/pkg/domain"
)

type selectJobArgs struct {
	JobType string `mapstructure:"job_type"`
}

type answerArgs struct {
	QuestionID string `mapstructure:"question_id"`
	Answer     string `mapstructure:"answer"`
}

type confirmArgs struct {
	Categories []string `mapstructure:"categories"`
}

type addProductsArgs struct {
	Selections []domain.ProductSelection `mapstructure:"selections"`
	Products   []domain.ProductMatch     `mapstructure:"products"`
}

type laborArgs struct {
	Hours float64  `mapstructure:"hours"`
	Rate  *float64 `mapstructure:"rate"`
}

type markupArgs struct {
	Percent float64 `mapstructure:"percent"`
}

// DecodeCommand maps a structured UI command onto its event. ok is false for
// an unknown command name; err is set when the arguments are malformed.
func DecodeCommand(cmd *domain.Command) (ev domain.Event, ok bool, err error) {
	if cmd == nil {
		return nil, false, nil
	}

	switch domain.EventType(cmd.Name) {
	case domain.EventStart:
		return domain.StartEvent{}, true, nil

	case domain.EventSelectJob:
		var args selectJobArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		if args.JobType == "" {
			return nil, true, fmt.Errorf("select_job: job_type is required")
		}
		return domain.SelectJobEvent{JobType: args.JobType}, true, nil

	case domain.EventAnswerScoping:
		var args answerArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		if args.Answer == "" {
			return nil, true, fmt.Errorf("answer_scoping: answer is required")
		}
		return domain.AnswerScopingEvent{QuestionID: args.QuestionID, Answer: args.Answer}, true, nil

	case domain.EventConfirmChecklist:
		var args confirmArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		return domain.ConfirmChecklistEvent{Categories: args.Categories}, true, nil

	case domain.EventSkipChecklist:
		return domain.SkipChecklistEvent{}, true, nil

	case domain.EventAddProducts:
		var args addProductsArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		for _, sel := range args.Selections {
			if sel.ProductID == "" || sel.Quantity < 0 {
				return nil, true, fmt.Errorf("add_products: invalid selection %+v", sel)
			}
		}
		for _, p := range args.Products {
			if p.Product.ID == "" || p.Quantity < 0 {
				return nil, true, fmt.Errorf("add_products: invalid product %+v", p)
			}
		}
		return domain.AddProductsEvent{Selections: args.Selections, Products: args.Products}, true, nil

	case domain.EventSkipProducts:
		return domain.SkipProductsEvent{}, true, nil

	case domain.EventSetLabor:
		var args laborArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		if args.Hours < 0 || (args.Rate != nil && *args.Rate < 0) {
			return nil, true, fmt.Errorf("set_labor: negative value")
		}
		return domain.SetLaborEvent{Hours: args.Hours, Rate: args.Rate}, true, nil

	case domain.EventSetMarkup:
		var args markupArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return nil, true, err
		}
		if args.Percent < 0 {
			return nil, true, fmt.Errorf("set_markup: negative percent")
		}
		return domain.SetMarkupEvent{Percent: args.Percent}, true, nil

	case domain.EventFinalize:
		return domain.FinalizeEvent{}, true, nil

	case domain.EventStartNew:
		return domain.StartNewEvent{}, true, nil
	}

	return nil, false, nil
}

func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid command arguments: %w", err)
	}
	return nil
}
