package models

// FunctionCount is the number of fixed taxonomy functions.
const FunctionCount = 12

// FunctionNames lists the twelve functions; index i holds function id i+1.
var FunctionNames = [FunctionCount]string{
	"1 Импульс", "2 Ввод", "3 Контакт", "4 Различение",
	"5 Формирование", "6 Связность", "7 Конфликт",
	"8 Согласование", "9 Реализация", "10 Контроль",
	"11 Завершение", "12 Осмысление",
}

// FunctionGroup is one of the four fixed groups of three functions.
type FunctionGroup struct {
	Name  string `json:"name"`
	Funcs [3]int `json:"funcs"`
}

// FunctionGroups lists the groups in wedge order.
var FunctionGroups = [4]FunctionGroup{
	{Name: "A Ориентация", Funcs: [3]int{1, 2, 3}},
	{Name: "B Различение", Funcs: [3]int{4, 5, 6}},
	{Name: "C Решение", Funcs: [3]int{7, 8, 9}},
	{Name: "D Завершение", Funcs: [3]int{10, 11, 12}},
}

// ValidFunctionID reports whether id is within 1..12.
func ValidFunctionID(id int) bool {
	return id >= 1 && id <= FunctionCount
}

// FunctionName returns the taxonomy name of id.
func FunctionName(id int) (string, bool) {
	if !ValidFunctionID(id) {
		return "", false
	}
	return FunctionNames[id-1], true
}

// SectorCount returns the number of wedges drawn in mode.
func (m SectorMode) SectorCount() int {
	if m == SectorMode4 {
		return len(FunctionGroups)
	}
	return FunctionCount
}

// WedgeFunction maps a wedge index (0 at 12 o'clock, clockwise) to the
// function id it addresses. In four-sector mode a wedge addresses the first
// function of its group.
func (m SectorMode) WedgeFunction(idx int) (int, bool) {
	if idx < 0 || idx >= m.SectorCount() {
		return 0, false
	}
	if m == SectorMode4 {
		return FunctionGroups[idx].Funcs[0], true
	}
	return idx + 1, true
}

// Addressable reports whether a pointer can reach function id in mode.
func (m SectorMode) Addressable(id int) bool {
	for i := 0; i < m.SectorCount(); i++ {
		if fid, _ := m.WedgeFunction(i); fid == id {
			return true
		}
	}
	return false
}
