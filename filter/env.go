package filter

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

/*
Here the Env used in the moderation exempt filter is defined.
Once this struct is fixed, it should not be changed, otherwise filters in
existing configurations may not compile any more (f.e. if properties are
renamed etc.)
*/

// Env is what an exempt-filter expression sees for one chat event.
type Env struct {
	RoomId     string
	UserId     string
	UserName   string
	GlobalRank string
	RoomRank   string
	Text       string
}

// Compile compiles an exempt-filter expression against the Env shape. An
// empty source yields a nil program, meaning "no filter".
func Compile(source string) (*vm.Program, error) {
	if source == "" {
		return nil, nil
	}
	return expr.Compile(source, expr.Env(Env{}), expr.AsBool())
}

// Run evaluates a compiled filter for one event. Evaluation errors count as
// "not exempt" so a broken filter never turns moderation off silently.
func Run(prog *vm.Program, env Env) bool {
	if prog == nil {
		return false
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	b, ok := res.(bool)
	return ok && b
}
