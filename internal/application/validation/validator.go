package validation

import (
	"fmt"
	"strings"

	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

// DefaultMinTextLength applies to text_moderated steps without a
// configured minimum.
const DefaultMinTextLength = 10

// Input is one raw submission: text, a stored file reference, or the
// structured payment payload, depending on the step kind.
type Input struct {
	Text    string
	FileRef string
	Payment *PaymentInput
}

// PaymentInput is the structured payload of the payment_details step.
type PaymentInput struct {
	Phone          string
	BankName       string
	CardHolderName string
}

// Outcome is the result of validating one submission.
type Outcome struct {
	Accepted           bool
	Data               map[string]any
	ErrorMessage       string
	RequiresModeration bool
}

func reject(msg string) Outcome {
	return Outcome{ErrorMessage: msg}
}

// Validate checks a submission against a step. It is pure: no I/O, no
// state. The product supplies the fallback article code.
func Validate(step *task.Step, product *catalog.Product, in Input) (Outcome, error) {
	out, err := validateKind(step, product, in)
	if err != nil {
		return Outcome{}, err
	}
	// Some kinds are moderated no matter what the step says.
	out.RequiresModeration = step.Moderated()
	return out, nil
}

func validateKind(step *task.Step, product *catalog.Product, in Input) (Outcome, error) {
	switch step.Kind {
	case task.KindPhoto:
		return validatePhoto(in, "Please send a photo."), nil

	case task.KindPublishReview:
		return validatePhoto(in, "Please send a screenshot of the published review."), nil

	case task.KindArticleCheck:
		cfg, err := step.DecodeConfig()
		if err != nil {
			return Outcome{}, err
		}
		expected := cfg.(task.ArticleCheckConfig).ExpectedCode
		if expected == "" && product != nil {
			expected = product.Article
		}
		text := strings.TrimSpace(in.Text)
		if text != expected {
			return reject("The article code does not match. Check it and try again."), nil
		}
		return Outcome{Accepted: true, Data: map[string]any{"article": text}}, nil

	case task.KindTextModerated:
		cfg, err := step.DecodeConfig()
		if err != nil {
			return Outcome{}, err
		}
		minLen := cfg.(task.TextConfig).MinLength
		if minLen == 0 {
			minLen = DefaultMinTextLength
		}
		text := strings.TrimSpace(in.Text)
		if len([]rune(text)) < minLen {
			return reject(fmt.Sprintf("The text is too short. At least %d characters required.", minLen)), nil
		}
		return Outcome{Accepted: true, Data: map[string]any{"text": text}}, nil

	case task.KindConfirm:
		// Triggered by an explicit action, not message content.
		return Outcome{Accepted: true, Data: map[string]any{"confirmed": true}}, nil

	case task.KindChoice:
		cfg, err := step.DecodeConfig()
		if err != nil {
			return Outcome{}, err
		}
		choices := cfg.(task.ChoiceConfig).Choices
		choice := strings.TrimSpace(in.Text)
		if len(choices) > 0 && !contains(choices, choice) {
			return reject("Please pick one of the offered options."), nil
		}
		return Outcome{Accepted: true, Data: map[string]any{"choice": choice}}, nil

	case task.KindOrderNumber:
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return reject("Please enter the order number."), nil
		}
		return Outcome{Accepted: true, Data: map[string]any{"orderNumber": text}}, nil

	case task.KindCheckLink:
		text := strings.TrimSpace(in.Text)
		if !strings.HasPrefix(text, "https://") {
			return reject("Please send a valid link (it must start with https://)."), nil
		}
		return Outcome{Accepted: true, Data: map[string]any{"link": text}}, nil

	case task.KindPaymentDetails:
		if in.Payment == nil {
			return reject("Payment details are incomplete."), nil
		}
		return ValidatePayment(*in.Payment), nil

	default:
		return Outcome{}, fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}

func validatePhoto(in Input, errMsg string) Outcome {
	if in.FileRef == "" {
		return reject(errMsg)
	}
	return Outcome{Accepted: true, Data: map[string]any{"photo": in.FileRef}}
}

// ValidatePayment accepts the payment payload only when all three
// fields are present. Field-by-field collection uses
// ValidatePaymentField while the sub-flow is in flight.
func ValidatePayment(p PaymentInput) Outcome {
	phone := strings.TrimSpace(p.Phone)
	bank := strings.TrimSpace(p.BankName)
	holder := strings.TrimSpace(p.CardHolderName)
	if phone == "" || bank == "" || holder == "" {
		return reject("Please fill in all fields.")
	}
	return Outcome{Accepted: true, Data: map[string]any{
		"phone":          phone,
		"bankName":       bank,
		"cardHolderName": holder,
	}}
}

// PaymentField names one field of the payment sub-flow, collected in
// order: phone, bank name, holder name.
type PaymentField string

const (
	FieldPhone      PaymentField = "phone"
	FieldBankName   PaymentField = "bank_name"
	FieldHolderName PaymentField = "card_holder_name"
)

// ValidatePaymentField checks a single field submission of the payment
// sub-flow.
func ValidatePaymentField(field PaymentField, value string) Outcome {
	v := strings.TrimSpace(value)
	if v == "" {
		switch field {
		case FieldPhone:
			return reject("Please enter the phone number linked to your bank.")
		case FieldBankName:
			return reject("Please enter your bank name.")
		default:
			return reject("Please enter the account holder's full name.")
		}
	}
	return Outcome{Accepted: true, Data: map[string]any{string(field): v}}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
