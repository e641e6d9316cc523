package tir

// Function is the unit the optimizer consumes from the front-end and hands
// to the back-end: an ordered op sequence plus the names already bound on
// entry (parameters and closure cells).
type Function struct {
	Name                 string
	Module               string
	SourcePath           string
	Ops                  []Op
	PredefinedValueNames []string
}

// Clone returns a deep-enough copy for a round to mutate without aliasing
// the caller's slices: the Ops slice, each op's Args slice and the
// PredefinedValueNames slice are copied.
func (f *Function) Clone() *Function {
	ops := make([]Op, len(f.Ops))
	for i, o := range f.Ops {
		args := make([]Arg, len(o.Args))
		copy(args, o.Args)
		o.Args = args
		ops[i] = o
	}
	names := make([]string, len(f.PredefinedValueNames))
	copy(names, f.PredefinedValueNames)
	return &Function{
		Name:                 f.Name,
		Module:               f.Module,
		SourcePath:           f.SourcePath,
		Ops:                  ops,
		PredefinedValueNames: names,
	}
}
