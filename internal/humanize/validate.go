package humanize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/ChuLiYu/campaign-dispatch/internal/window"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError is returned when a humanization config is rejected.
// Errors holds one message per violation, in a stable order.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid humanization config: " + strings.Join(e.Errors, "; ")
}

// ValidationResult is the outcome of ValidateConfig
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// configRules mirrors HumanizationConfig with the tags enforced at config-save time
type configRules struct {
	DelayMin     *int         `json:"delay_min" validate:"required,min=5,max=300"`
	DelayMax     *int         `json:"delay_max" validate:"required,min=5,max=300"`
	Distribution string       `json:"distribution" validate:"omitempty,oneof=uniform normal"`
	Window       *windowRules `json:"sending_window" validate:"omitempty"`
}

type windowRules struct {
	StartTime string `json:"start_time" validate:"omitempty,clock"`
	EndTime   string `json:"end_time" validate:"omitempty,clock"`
	Days      []int  `json:"days" validate:"omitempty,dive,min=0,max=6"`
}

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func rules() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// messages use the wire names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})

		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := window.ParseClock(fl.Field().String())
			return err == nil
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		register(v, trans, "required", "{0} is required")
		register(v, trans, "min", "{0} must be at least {1}")
		register(v, trans, "max", "{0} must be at most {1}")
		register(v, trans, "oneof", "{0} must be one of [{1}]")
		register(v, trans, "clock", "{0} must use the HH:mm format")

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// register installs a translation keyed by the full field path, e.g. sending_window.days[2]
func register(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, fieldPath(fe), fe.Param())
			if err != nil {
				return fe.Error()
			}
			return msg
		})
}

// fieldPath drops the root struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func (s *validatorSvc) check(r configRules) []string {
	var errs []string
	if err := s.validate.Struct(r); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				errs = append(errs, fe.Translate(s.translator))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if r.DelayMin != nil && r.DelayMax != nil && *r.DelayMin > *r.DelayMax {
		errs = append(errs, "delay_min must not be greater than delay_max")
	}

	if r.Window != nil && r.Window.StartTime != "" && r.Window.EndTime != "" {
		start, errS := window.ParseClock(r.Window.StartTime)
		end, errE := window.ParseClock(r.Window.EndTime)
		if errS == nil && errE == nil && end <= start {
			errs = append(errs, "sending_window.end_time must be later than sending_window.start_time")
		}
	}
	return errs
}

func rulesFor(cfg types.HumanizationConfig) configRules {
	minS, maxS := cfg.DelayMinSeconds, cfg.DelayMaxSeconds
	r := configRules{DelayMin: &minS, DelayMax: &maxS, Distribution: cfg.Distribution}
	if cfg.Window != nil {
		r.Window = &windowRules{StartTime: cfg.Window.StartTime, EndTime: cfg.Window.EndTime, Days: cfg.Window.Days}
	}
	return r
}

// Validate checks an already typed config. It returns *ValidationError listing
// every violation, or nil.
func Validate(cfg types.HumanizationConfig) error {
	if errs := rules().check(rulesFor(cfg)); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateConfig checks a loosely shaped config (for example decoded JSON)
// and reports all violations.
func ValidateConfig(raw map[string]any) ValidationResult {
	if _, err := ParseConfig(raw); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return ValidationResult{Valid: false, Errors: ve.Errors}
		}
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return ValidationResult{Valid: true, Errors: []string{}}
}

// ParseConfig validates raw and only then builds the typed config
func ParseConfig(raw map[string]any) (types.HumanizationConfig, error) {
	if raw == nil {
		return types.HumanizationConfig{}, &ValidationError{Errors: []string{"config is required"}}
	}

	var (
		p    parser
		r    configRules
		cfg  types.HumanizationConfig
		errs []string
	)

	r.DelayMin = p.integer(raw, "delay_min")
	r.DelayMax = p.integer(raw, "delay_max")
	cfg.RandomizeOrder = p.boolean(raw, "randomize_order")
	r.Distribution = p.str(raw, "distribution", "distribution")
	r.Window = p.window(raw)

	errs = append(errs, p.errs...)
	errs = append(errs, rules().check(r)...)
	if len(errs) > 0 {
		return types.HumanizationConfig{}, &ValidationError{Errors: errs}
	}

	cfg.DelayMinSeconds = *r.DelayMin
	cfg.DelayMaxSeconds = *r.DelayMax
	cfg.Distribution = r.Distribution
	if r.Window != nil {
		cfg.Window = &types.SendingWindow{StartTime: r.Window.StartTime, EndTime: r.Window.EndTime, Days: r.Window.Days}
	}
	return cfg, nil
}

// DecodeConfig parses a JSON document into a validated config
func DecodeConfig(data []byte) (types.HumanizationConfig, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.HumanizationConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return ParseConfig(raw)
}

// parser extracts typed values from a loosely shaped map, collecting type errors
type parser struct {
	errs []string
}

func (p *parser) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Sprintf(format, args...))
}

func (p *parser) integer(raw map[string]any, key string) *int {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := toInt(v)
	if !ok {
		p.fail("%s must be an integer", key)
		return nil
	}
	return &n
}

func (p *parser) boolean(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		p.fail("%s must be a boolean", key)
		return false
	}
	return b
}

func (p *parser) str(raw map[string]any, key, path string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.fail("%s must be a string", path)
		return ""
	}
	return s
}

func (p *parser) window(raw map[string]any) *windowRules {
	v, ok := raw["sending_window"]
	if !ok || v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		p.fail("sending_window must be an object")
		return nil
	}

	w := &windowRules{
		StartTime: p.str(m, "start_time", "sending_window.start_time"),
		EndTime:   p.str(m, "end_time", "sending_window.end_time"),
	}

	switch days := m["days"].(type) {
	case nil:
	case []int:
		w.Days = days
	case []any:
		w.Days = make([]int, 0, len(days))
		for _, d := range days {
			n, ok := toInt(d)
			if !ok {
				p.fail("sending_window.days must be a list of integers")
				w.Days = nil
				break
			}
			w.Days = append(w.Days, n)
		}
	default:
		p.fail("sending_window.days must be a list of integers")
	}
	return w
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
