package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// enumTags are the custom tags for the domain's closed string sets.
var enumTags = map[string]struct {
	valid   func(string) bool
	message string
}{
	"violation_type": {
		valid:   func(s string) bool { return model.ViolationType(s).Valid() },
		message: "{0} must be one of TAB_SWITCH, FULLSCREEN_EXIT, MOTION_DETECTED, OTHER",
	},
	"webcam_status": {
		valid: func(s string) bool {
			return s == string(model.WebcamOn) || s == string(model.WebcamOff)
		},
		message: "{0} must be on or off",
	},
	"recording_status": {
		valid: func(s string) bool {
			return s == string(model.RecordingActive) || s == string(model.RecordingStopped)
		},
		message: "{0} must be recording or stopped",
	},
	"session_status": {
		valid: func(s string) bool {
			switch model.SessionStatus(s) {
			case model.SessionStatusNotStarted, model.SessionStatusActive,
				model.SessionStatusFinished, model.SessionStatusTerminated:
				return true
			}
			return false
		},
		message: "{0} must be one of NOT_STARTED, ACTIVE, FINISHED, TERMINATED",
	},
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		register(v)
	}
}

func register(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register English translations.
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	for tag, rule := range enumTags {
		_ = v.RegisterValidation(tag, func(fl govalidator.FieldLevel) bool {
			return rule.valid(fl.Field().String())
		})
		_ = v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, rule.message, true) },
			func(ut ut.Translator, fe govalidator.FieldError) string {
				msg, _ := ut.T(tag, fe.Field())
				return msg
			},
		)
	}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
