package dao

// Parameter narrows List results: the named field must equal one of the
// accepted values.
type Parameter struct {
	Name   string
	Values []interface{}
}

// NewParameter creates a list filter parameter.
func NewParameter(name string, values ...interface{}) *Parameter {
	return &Parameter{Name: name, Values: values}
}

// Matches reports whether the supplied field value satisfies the parameter.
func (p *Parameter) Matches(value interface{}) bool {
	if p == nil || len(p.Values) == 0 {
		return true
	}
	for _, candidate := range p.Values {
		if candidate == value {
			return true
		}
	}
	return false
}
