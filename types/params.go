package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.25
	DefaultPassThreshold = 0.25

	MinClaimTextLength = 8
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names so the details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// SearchOptions are the resolved retrieval knobs.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64
}

// ValidationOptions are the resolved knobs of a claim batch.
type ValidationOptions struct {
	SearchOptions
	PassThreshold float64
}

type ReferenceParams struct {
	ClaimText     string   `json:"claimText" validate:"min=8"`
	TopK          *int     `json:"topK" validate:"omitnil,min=1,max=10"`
	MinSimilarity *float64 `json:"minSimilarity" validate:"omitnil,min=0,max=1"`
}

func (params *ReferenceParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *ReferenceParams) Options() SearchOptions {
	return resolveSearch(params.TopK, params.MinSimilarity)
}

type RunClaimsParams struct {
	Claims        []Claim  `json:"claims" validate:"required,dive"`
	TopK          *int     `json:"topK" validate:"omitnil,min=1,max=10"`
	MinSimilarity *float64 `json:"minSimilarity" validate:"omitnil,min=0,max=1"`
	PassThreshold *float64 `json:"passThreshold" validate:"omitnil,min=0,max=1"`
}

func (params *RunClaimsParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *RunClaimsParams) Options() ValidationOptions {
	return resolveValidation(params.TopK, params.MinSimilarity, params.PassThreshold)
}

type FrameworkClaimsParams struct {
	Framework     Framework `json:"framework"`
	TopK          *int      `json:"topK" validate:"omitnil,min=1,max=10"`
	MinSimilarity *float64  `json:"minSimilarity" validate:"omitnil,min=0,max=1"`
	PassThreshold *float64  `json:"passThreshold" validate:"omitnil,min=0,max=1"`
}

func (params *FrameworkClaimsParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *FrameworkClaimsParams) Options() ValidationOptions {
	return resolveValidation(params.TopK, params.MinSimilarity, params.PassThreshold)
}

func resolveSearch(topK *int, minSimilarity *float64) SearchOptions {
	opts := SearchOptions{TopK: DefaultTopK, MinSimilarity: DefaultMinSimilarity}
	if topK != nil {
		opts.TopK = *topK
	}
	if minSimilarity != nil {
		opts.MinSimilarity = *minSimilarity
	}
	return opts
}

func resolveValidation(topK *int, minSimilarity, passThreshold *float64) ValidationOptions {
	opts := ValidationOptions{
		SearchOptions: resolveSearch(topK, minSimilarity),
		PassThreshold: DefaultPassThreshold,
	}
	if passThreshold != nil {
		opts.PassThreshold = *passThreshold
	}
	return opts
}

func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"body": err.Error()}
	}
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		details[fieldPath(e.Namespace())] = describe(e)
	}
	return details
}

// fieldPath drops the struct name validator prefixes to every namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must contain at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "max":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	}
	return fmt.Sprintf("failed on '%s' tag", e.Tag())
}
