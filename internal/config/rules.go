package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/hierarchy"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func ruleValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(ruleStructLevel, hierarchy.Rule{})
	})
	return validate
}

// ruleStructLevel enforces the parameters each rule type needs
func ruleStructLevel(sl validator.StructLevel) {
	rule := sl.Current().Interface().(hierarchy.Rule)
	switch rule.Type {
	case hierarchy.RuleContentType:
		if strings.TrimSpace(rule.Params.Slug) == "" {
			sl.ReportError(rule.Params.Slug, "Slug", "slug", "required_for_contenttype", "")
		}
	case hierarchy.RuleQuery:
		if strings.TrimSpace(rule.Params.Query) == "" {
			sl.ReportError(rule.Params.Query, "Query", "query", "required_for_query", "")
		}
	}
}

// ValidateRule checks one rule
func ValidateRule(rule hierarchy.Rule) error {
	err := ruleValidator().Struct(rule)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid rule: %s", strings.Join(msgs, ", "))
}

// ValidRules returns the rules that pass validation, in order. Invalid rules
// are logged and dropped.
func ValidRules(rules []hierarchy.Rule, logger *zap.Logger) []hierarchy.Rule {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]hierarchy.Rule, 0, len(rules))
	for i, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			logger.Warn("rule dropped", zap.Int("index", i), zap.String("type", rule.Type), zap.Error(err))
			continue
		}
		out = append(out, rule)
	}
	return out
}
