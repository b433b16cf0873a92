package plan

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"plancal/internal/caldate"
	"plancal/internal/model"
)

// ErrMalformedPlan is the sentinel wrapped by every MalformedPlanError.
var ErrMalformedPlan = errors.New("malformed plan")

// MalformedPlanError reports a plan missing (or carrying an unusable value
// for) a field its type requires.
type MalformedPlanError struct {
	PlanID string
	Field  string
	Reason string
}

func (e *MalformedPlanError) Error() string {
	return fmt.Sprintf("malformed plan %q: field %s %s", e.PlanID, e.Field, e.Reason)
}

func (e *MalformedPlanError) Unwrap() error { return ErrMalformedPlan }

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report JSON field names so errors match what the store and API carry.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := validate.RegisterValidation("caldate", validateCalDate); err != nil {
		panic(fmt.Sprintf("failed to register caldate validator: %v", err))
	}
	if err := validate.RegisterValidation("plantype", validatePlanType); err != nil {
		panic(fmt.Sprintf("failed to register plantype validator: %v", err))
	}
}

// validateCalDate accepts the empty string (absent) or a valid YYYY-MM-DD.
func validateCalDate(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || caldate.Valid(v)
}

func validatePlanType(fl validator.FieldLevel) bool {
	switch model.PlanType(fl.Field().String()) {
	case model.PlanReminder, model.PlanChecklist, model.PlanSession:
		return true
	default:
		return false
	}
}

// Validate checks that p carries every field its type needs. Frequency is
// never checked: unknown cadences have a defined fallback.
func Validate(p model.Plan) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	return &MalformedPlanError{
		PlanID: p.ID,
		Field:  fieldPath(fe.Namespace()),
		Reason: reason(fe),
	}
}

// fieldPath strips the struct name prefix: "Plan.steps[1].date" -> "steps[1].date".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "caldate":
		return fmt.Sprintf("is not a YYYY-MM-DD date (%v)", fe.Value())
	case "plantype":
		return fmt.Sprintf("has unknown plan type %q", fe.Value())
	default:
		return "failed " + fe.Tag()
	}
}
