package pgbulk

import "fmt"

// Registry resolves operator and set-function aliases. Registrations are
// scanned newest first, so a later registration shadows any built-in or
// earlier entry sharing an alias while the shadowed entry keeps serving its
// other aliases.
type Registry struct {
	operators []Operator
	setFuncs  []SetFunc
}

// NewRegistry returns a registry preloaded with the built-in operators and
// set functions.
func NewRegistry() *Registry {
	r := &Registry{}
	r.RegisterOperator(
		eqOperator{},
		neOperator{},
		inOperator{},
		inOperator{negate: true},
		cmpOperator{aliases: []string{"lt", "<"}, op: "<"},
		cmpOperator{aliases: []string{"lte", "<="}, op: "<="},
		cmpOperator{aliases: []string{"gt", ">"}, op: ">"},
		cmpOperator{aliases: []string{"gte", ">="}, op: ">="},
		betweenOperator{},
		isNullOperator{},
	)
	r.RegisterSetFunc(
		eqFunc{},
		eqNotNullFunc{},
		incrFunc{},
		concatFunc{},
		unionFunc{},
		arrayRemoveFunc{},
		nowFunc{},
		nowFunc{ifAbsent: true},
	)
	return r
}

// RegisterOperator adds operators to the registry. Later registrations win
// alias conflicts.
func (r *Registry) RegisterOperator(ops ...Operator) {
	r.operators = append(r.operators, ops...)
}

// RegisterSetFunc adds set functions to the registry. Later registrations
// win alias conflicts.
func (r *Registry) RegisterSetFunc(fns ...SetFunc) {
	r.setFuncs = append(r.setFuncs, fns...)
}

// Operator resolves v to an operator: an Operator value passes through, a
// string is looked up by alias.
func (r *Registry) Operator(v any) (Operator, error) {
	switch v := v.(type) {
	case Operator:
		return v, nil
	case string:
		for i := len(r.operators) - 1; i >= 0; i-- {
			for _, a := range r.operators[i].Aliases() {
				if a == v {
					return r.operators[i], nil
				}
			}
		}
		return nil, &UnknownOperatorError{Alias: v}
	default:
		return nil, fmt.Errorf("pgbulk: invalid operator reference %T", v)
	}
}

// SetFunc resolves v to a set function: a SetFunc value passes through, a
// string is looked up by alias.
func (r *Registry) SetFunc(v any) (SetFunc, error) {
	switch v := v.(type) {
	case SetFunc:
		return v, nil
	case string:
		for i := len(r.setFuncs) - 1; i >= 0; i-- {
			for _, a := range r.setFuncs[i].Aliases() {
				if a == v {
					return r.setFuncs[i], nil
				}
			}
		}
		return nil, &UnknownSetFunctionError{Alias: v}
	default:
		return nil, fmt.Errorf("pgbulk: invalid set function reference %T", v)
	}
}
