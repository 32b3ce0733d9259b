package task

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates step types.
type Kind string

const (
	KindPhoto          Kind = "photo"
	KindArticleCheck   Kind = "article_check"
	KindTextModerated  Kind = "text_moderated"
	KindConfirm        Kind = "confirm"
	KindChoice         Kind = "choice"
	KindOrderNumber    Kind = "order_number"
	KindCheckLink      Kind = "check_link"
	KindPaymentDetails Kind = "payment_details"
	KindPublishReview  Kind = "publish_review"
)

// Label returns a participant-facing name for the kind.
func (k Kind) Label() string {
	switch k {
	case KindPhoto:
		return "Photo upload"
	case KindArticleCheck:
		return "Article check"
	case KindTextModerated:
		return "Moderated text"
	case KindConfirm:
		return "Confirmation"
	case KindChoice:
		return "Choice"
	case KindOrderNumber:
		return "Order number"
	case KindCheckLink:
		return "Receipt link"
	case KindPaymentDetails:
		return "Payment details"
	case KindPublishReview:
		return "Review publication"
	default:
		return string(k)
	}
}

// AlwaysModerated reports whether responses of this kind go to a human
// reviewer regardless of the step's own flag.
func (k Kind) AlwaysModerated() bool {
	return k == KindTextModerated || k == KindPublishReview
}

// Config is the tagged union of per-kind step settings. Only the
// variant matching the step kind is populated.
type Config interface {
	configKind() Kind
}

// ArticleCheckConfig holds the expected code for article_check steps.
// An empty ExpectedCode means the product's own article is used.
type ArticleCheckConfig struct {
	ExpectedCode string `json:"expectedCode,omitempty"`
}

// TextConfig holds settings for text_moderated steps.
type TextConfig struct {
	MinLength int    `json:"minLength,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// ChoiceConfig holds the option list for choice steps. An empty list
// accepts any submitted value.
type ChoiceConfig struct {
	Choices []string `json:"choices,omitempty"`
}

// PublishConfig holds the scheduled local publication time ("15:04")
// for publish_review steps.
type PublishConfig struct {
	PublishAt string `json:"publishAt,omitempty"`
}

func (ArticleCheckConfig) configKind() Kind { return KindArticleCheck }
func (TextConfig) configKind() Kind         { return KindTextModerated }
func (ChoiceConfig) configKind() Kind       { return KindChoice }
func (PublishConfig) configKind() Kind      { return KindPublishReview }

// DecodeConfig parses a step's raw config payload into the variant for
// its kind. Kinds without settings return nil.
func (s *Step) DecodeConfig() (Config, error) {
	switch s.Kind {
	case KindArticleCheck:
		var c ArticleCheckConfig
		return decodeInto(s.Config, &c)
	case KindTextModerated:
		var c TextConfig
		return decodeInto(s.Config, &c)
	case KindChoice:
		var c ChoiceConfig
		return decodeInto(s.Config, &c)
	case KindPublishReview:
		var c PublishConfig
		return decodeInto(s.Config, &c)
	case KindPhoto, KindConfirm, KindOrderNumber, KindCheckLink, KindPaymentDetails:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown step kind: %s", s.Kind)
	}
}

func decodeInto[T Config](raw json.RawMessage, c *T) (Config, error) {
	if len(raw) == 0 {
		return *c, nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode step config: %w", err)
	}
	return *c, nil
}
