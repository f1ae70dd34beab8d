package generator

import "github.com/0xmhha/contractforge/pkg/models"

// Draft is a generated contract ready to be deployed
type Draft struct {
	ContractCode     string                   `json:"contractCode"`
	ContractName     string                   `json:"contractName"`
	Description      string                   `json:"description"`
	PaymentFunctions []models.PaymentFunction `json:"paymentFunctions"`
}

// Outcome is the result of a generation: Structured or RawFallback.
// Callers branch with a type switch.
type Outcome interface {
	// Result returns the draft carried by the outcome
	Result() Draft
	// Source names the variant for API responses
	Source() string

	outcome()
}

// Structured means the completion contained a usable JSON draft
type Structured struct {
	Draft Draft
}

func (s Structured) Result() Draft { return s.Draft }
func (Structured) Source() string  { return SourceStructured }
func (Structured) outcome()        {}

// RawFallback means the completion could not be parsed. Draft wraps the raw
// text as contract code with a synthetic name and the goal as description.
type RawFallback struct {
	Text  string
	Draft Draft
	// Reason is why the structured parse was rejected
	Reason string
}

func (r RawFallback) Result() Draft { return r.Draft }
func (RawFallback) Source() string  { return SourceFallback }
func (RawFallback) outcome()        {}

// Outcome sources
const (
	SourceStructured = "structured"
	SourceFallback   = "fallback"
)
