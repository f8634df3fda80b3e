package registration

import (
	"strings"

	"github.com/antzucaro/matchr"
)

type Department struct {
	Code string
	Name string
}

// the departments reachable through the timetable page. Codes are the
// site's own `dpt` values.
var departments = []Department{
	{"01", "一般內科"},
	{"02", "一般外科"},
	{"03", "小兒科"},
	{"04", "婦產科"},
	{"05", "家庭醫學科"},
	{"06", "骨科"},
	{"07", "泌尿科"},
	{"08", "眼科"},
	{"09", "耳鼻喉科"},
	{"10", "皮膚科"},
	{"11", "神經內科"},
	{"12", "精神科"},
	{"13", "復健科"},
	{"14", "心臟內科"},
	{"15", "胸腔內科"},
	{"16", "腸胃肝膽科"},
	{"17", "新陳代謝科"},
	{"18", "牙科"},
}

const departmentMatchThreshold = 0.8

// MatchDepartment resolves user input to a department, by exact code,
// exact name, substring, then fuzzy similarity in that order.
func MatchDepartment(input string) (Department, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Department{}, false
	}

	for _, dept := range departments {
		if dept.Code == input || dept.Name == input {
			return dept, true
		}
	}
	for _, dept := range departments {
		if strings.Contains(dept.Name, input) {
			return dept, true
		}
	}

	best := Department{}
	bestScore := 0.0
	for _, dept := range departments {
		score := matchr.JaroWinkler(dept.Name, input, false)
		if score > bestScore {
			best = dept
			bestScore = score
		}
	}
	if bestScore >= departmentMatchThreshold {
		return best, true
	}
	return Department{}, false
}
