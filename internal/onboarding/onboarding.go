// Package onboarding holds the system-authored UI copy shown next to the
// map. All of it must pass the guard's system-voice check.
package onboarding

import (
	"slices"

	"github.com/starford/tera/internal/guard"
)

// Hint is shown while the pointer hovers a sector.
const Hint = "Клик — задать образ · Shift+клик — удалить"

var steps = []guard.Step{
	{ID: "sectors", T: "Круг разделён на сектора: по одному на каждую из двенадцати функций."},
	{ID: "set-image", T: "Клик по сектору задаёт образ функции."},
	{ID: "delete-image", T: "Shift+клик по сектору удаляет образ."},
	{ID: "mode", T: "В режиме 4 сектора функции собраны в группы A, B, C и D."},
	{ID: "exchange", T: "Образы секторов можно выгрузить в файл и загрузить обратно."},
}

// Copy is the complete UI copy set.
type Copy struct {
	Hint  string       `json:"hint"`
	Steps []guard.Step `json:"steps"`
}

// Default returns the built-in copy.
func Default() Copy {
	return Copy{Hint: Hint, Steps: slices.Clone(steps)}
}

// Verify checks c against p. A nil policy means the default one.
func (c Copy) Verify(p *guard.Policy) error {
	if p == nil {
		p = guard.Default()
	}
	if err := p.CheckUIText(c.Hint); err != nil {
		return err
	}
	return p.CheckOnboarding(c.Steps)
}

// Verify checks the built-in copy against the default policy.
func Verify() error {
	return Default().Verify(nil)
}
