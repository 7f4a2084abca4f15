package service

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/model"
)

// AllocationInput commits Quantity units of a product to a new drop.
// MaxPerCustomer defaults to 1.
type AllocationInput struct {
	ProductID      string `json:"product_id" validate:"required,max=64"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	MaxPerCustomer int    `json:"max_per_customer" validate:"gte=0"`
}

// CreateDropInput is the payload accepted by CreateDrop.
type CreateDropInput struct {
	Name              string            `json:"name" validate:"required,max=200"`
	Description       string            `json:"description" validate:"max=5000"`
	Type              model.DropType    `json:"type" validate:"required,droptype"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           *time.Time        `json:"end_time"`
	EarlyAccessStart  *time.Time        `json:"early_access_start"`
	MemberOnly        bool              `json:"member_only"`
	NotifySubscribers bool              `json:"notify_subscribers"`
	HeroImage         string            `json:"hero_image" validate:"omitempty,max=500"`
	TeaserText        *string           `json:"teaser_text" validate:"omitempty,max=500"`
	Allocations       []AllocationInput `json:"allocations" validate:"required,min=1,dive"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("droptype", func(fl validator.FieldLevel) bool {
		return model.DropType(fl.Field().String()).Valid()
	})
	return v
}

// validateCreateDrop runs the struct tags and then the cross-field time
// and allocation rules.
func validateCreateDrop(v *validator.Validate, in *CreateDropInput) error {
	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.ErrValidation.Msg("%v", err)
		}
		fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return fmt.Sprintf("%s: %s", strings.TrimPrefix(fe.Namespace(), "CreateDropInput."), fe.Tag())
		})
		return apperr.ErrValidation.
			Msg("invalid drop: %s", strings.Join(fields, "; ")).
			WithExtras(apperr.Extras{"fields": fields})
	}

	switch {
	case in.StartTime.IsZero():
		return apperr.ErrValidation.Msg("start_time is required")
	case in.EndTime != nil && !in.EndTime.After(in.StartTime):
		return apperr.ErrValidation.Msg("end_time must be after start_time")
	case in.EarlyAccessStart != nil && in.EarlyAccessStart.After(in.StartTime):
		return apperr.ErrValidation.Msg("early_access_start must not be after start_time")
	}

	if dups := lo.FindDuplicatesBy(in.Allocations, func(a AllocationInput) string { return a.ProductID }); len(dups) > 0 {
		return apperr.ErrValidation.Msg("product %s is allocated more than once", dups[0].ProductID)
	}
	return nil
}
