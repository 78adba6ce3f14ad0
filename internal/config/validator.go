package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for:
//   - Field-level rules declared in struct tags
//   - Consistency between the alphabet and the substitution model
//   - Parameters that are neither fixed nor given a prior
//   - Moves on unknown or fixed parameters, and duplicate moves
func Validate(cfg *Analysis) error {
	var errs []string
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (%s)", fieldPath(fe), fe.Tag(), fe.Param()))
		}
	}

	if cfg.Run.BurnIn >= cfg.Run.Generations {
		errs = append(errs, fmt.Sprintf("run: burn_in %d must be less than generations %d", cfg.Run.BurnIn, cfg.Run.Generations))
	}

	states := 4
	switch strings.ToLower(cfg.Data.Alphabet) {
	case "standard":
		states = cfg.Data.States
		if states < 2 {
			errs = append(errs, "data: standard alphabet needs states >= 2")
		}
		if cfg.Model.Substitution != "jc" {
			errs = append(errs, fmt.Sprintf("model: %s needs a nucleotide alphabet", cfg.Model.Substitution))
		}
	}

	m := cfg.Model
	if n := len(m.Frequencies); n > 0 && n != states {
		errs = append(errs, fmt.Sprintf("model: %d frequencies for %d states", n, states))
	}
	switch m.Substitution {
	case "hky":
		if m.Kappa == nil {
			errs = append(errs, "model: hky needs kappa")
		}
	case "gtr":
		if want := states * (states - 1) / 2; len(m.Exchangeabilities) != want {
			errs = append(errs, fmt.Sprintf("model: gtr needs %d exchangeabilities, got %d", want, len(m.Exchangeabilities)))
		}
	}

	free := map[string]bool{NodeTree: true, NodeBranchLengthRate: false}
	params := map[string]*ParameterConf{NodeKappa: m.Kappa, NodeAlpha: m.Alpha, NodePInv: m.PInv}
	for name, p := range params {
		if p == nil {
			continue
		}
		validateParameter(name, p, &errs)
		free[name] = !p.Fixed
	}
	if m.Kappa != nil && m.Substitution != "hky" {
		errs = append(errs, fmt.Sprintf("model: kappa is only used by hky, not %s", m.Substitution))
	}
	if m.Alpha != nil && m.GammaCategories < 2 {
		errs = append(errs, "model: alpha needs gamma_categories >= 2")
	}
	if p := m.PInv; p != nil {
		if p.Value < 0 || p.Value >= 1 {
			errs = append(errs, fmt.Sprintf("model.p_inv: value %g outside [0, 1)", p.Value))
		}
		if p.Prior != nil && p.Prior.Type == "uniform" && (p.Prior.Lower < 0 || p.Prior.Upper > 1) {
			errs = append(errs, "model.p_inv: uniform prior must lie within [0, 1]")
		}
	}

	seen := make(map[string]int)
	for i, mv := range cfg.Moves {
		key := mv.Type + "/" + mv.Node
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Sprintf("moves[%d]: duplicate of moves[%d] (%s on %s)", i, prev, mv.Type, mv.Node))
		} else {
			seen[key] = i
		}
		isFree, known := free[mv.Node]
		switch {
		case !known:
			errs = append(errs, fmt.Sprintf("moves[%d]: unknown node %q", i, mv.Node))
		case !isFree:
			errs = append(errs, fmt.Sprintf("moves[%d]: node %q is fixed", i, mv.Node))
		}
		if mv.Node == NodeTree && mv.Type == "nni" && cfg.Tree.FixedTopology {
			errs = append(errs, fmt.Sprintf("moves[%d]: nni on a fixed topology", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateParameter(name string, p *ParameterConf, errs *[]string) {
	loc := "model." + name
	if p.Fixed {
		return
	}
	if p.Prior == nil {
		*errs = append(*errs, fmt.Sprintf("%s: a free parameter needs a prior", loc))
		return
	}
	pr := p.Prior
	switch pr.Type {
	case "exponential":
		if !(pr.Rate > 0) {
			*errs = append(*errs, fmt.Sprintf("%s: exponential prior needs rate > 0", loc))
		}
	case "gamma":
		if !(pr.Rate > 0) || !(pr.Shape > 0) {
			*errs = append(*errs, fmt.Sprintf("%s: gamma prior needs shape > 0 and rate > 0", loc))
		}
	case "uniform":
		if !(pr.Lower < pr.Upper) {
			*errs = append(*errs, fmt.Sprintf("%s: uniform prior needs lower < upper", loc))
		} else if p.Value < pr.Lower || p.Value > pr.Upper {
			*errs = append(*errs, fmt.Sprintf("%s: value %g outside prior bounds", loc, p.Value))
		}
	}
}

// fieldPath turns "Analysis.Run.Generations" into "Run.Generations".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
