package services

import (
	"sort"
	"strconv"
	"strings"

	"github.com/yeremiapane/campus-gate/models"
)

const (
	UnknownVisitorName = "Unknown Visitor"
	DefaultGuardName   = "Security Staff"
)

// Cara sebuah identitas ditemukan
const (
	MatchExact       = "exact"
	MatchDerived     = "derived"
	MatchSubstring   = "substring"
	MatchAssigned    = "assigned"
	MatchGate        = "gate_rotation"
	MatchPlaceholder = "placeholder"
)

// Identity adalah hasil korelasi visit ke visitor dan petugas jaga
type Identity struct {
	VisitorID    uint   `json:"visitor_id,omitempty"`
	VisitorName  string `json:"visitor_name"`
	VisitorIDNo  string `json:"visitor_id_number,omitempty"`
	VisitorPhone string `json:"visitor_phone,omitempty"`
	VisitorMatch string `json:"visitor_match"`
	GuardID      uint   `json:"guard_id,omitempty"`
	GuardName    string `json:"guard_name"`
	Gate         string `json:"gate,omitempty"`
	GuardMatch   string `json:"guard_match"`
}

// VisitorMatcher adalah satu strategi pencocokan. Kandidat sudah terurut
// berdasarkan ID sehingga hasil selalu deterministik.
type VisitorMatcher struct {
	Name  string
	Match func(visit models.Visit, candidates []models.Visitor) (models.Visitor, bool)
}

// GateAssigner menebak gerbang untuk visit tanpa security_id
type GateAssigner interface {
	AssignGate(visit models.Visit) (string, bool)
}

// ModuloGateAssigner -> visit.ID mod len(Gates)
type ModuloGateAssigner struct {
	Gates []string
}

func NewModuloGateAssigner(gates ...string) ModuloGateAssigner {
	if len(gates) == 0 {
		gates = []string{"Gate 1", "Gate 2"}
	}
	return ModuloGateAssigner{Gates: gates}
}

func (a ModuloGateAssigner) AssignGate(visit models.Visit) (string, bool) {
	if len(a.Gates) == 0 {
		return "", false
	}
	return a.Gates[int(visit.ID%uint(len(a.Gates)))], true
}

// DefaultVisitorMatchers -> urutan: exact, derived, substring
func DefaultVisitorMatchers() []VisitorMatcher {
	return []VisitorMatcher{
		{Name: MatchExact, Match: matchExactID},
		{Name: MatchDerived, Match: matchDerivedSegment},
		{Name: MatchSubstring, Match: matchSubstring},
	}
}

func matchExactID(visit models.Visit, candidates []models.Visitor) (models.Visitor, bool) {
	if visit.VisitorID == nil {
		return models.Visitor{}, false
	}
	for _, c := range candidates {
		if c.ID == *visit.VisitorID {
			return c, true
		}
	}
	return models.Visitor{}, false
}

// segmen terakhir visit code (setelah '-') dibandingkan dengan Visitor.ID
func matchDerivedSegment(visit models.Visit, candidates []models.Visitor) (models.Visitor, bool) {
	idx := strings.LastIndex(visit.VisitCode, "-")
	if idx < 0 || idx == len(visit.VisitCode)-1 {
		return models.Visitor{}, false
	}
	id, err := strconv.ParseUint(visit.VisitCode[idx+1:], 10, 64)
	if err != nil || id == 0 {
		return models.Visitor{}, false
	}
	for _, c := range candidates {
		if uint64(c.ID) == id {
			return c, true
		}
	}
	return models.Visitor{}, false
}

func matchSubstring(visit models.Visit, candidates []models.Visitor) (models.Visitor, bool) {
	code := strings.TrimSpace(visit.VisitCode)
	if code == "" {
		return models.Visitor{}, false
	}
	for _, c := range candidates {
		idNo := strings.TrimSpace(c.IDNumber)
		if idNo == "" {
			continue
		}
		if strings.Contains(idNo, code) || strings.Contains(code, idNo) {
			return c, true
		}
	}
	return models.Visitor{}, false
}

// Correlator menyelesaikan visit menjadi identitas yang bisa ditampilkan.
// Tidak pernah gagal: jika tidak ada yang cocok, placeholder dikembalikan.
type Correlator struct {
	matchers []VisitorMatcher
	gates    GateAssigner
}

func NewCorrelator(gates GateAssigner, matchers ...VisitorMatcher) *Correlator {
	if len(matchers) == 0 {
		matchers = DefaultVisitorMatchers()
	}
	if gates == nil {
		gates = NewModuloGateAssigner()
	}
	return &Correlator{matchers: matchers, gates: gates}
}

// GateAssigner -> assigner yang dipakai untuk visit tanpa security_id
func (c *Correlator) GateAssigner() GateAssigner {
	return c.gates
}

func (c *Correlator) Resolve(visit models.Visit, visitors []models.Visitor, guards []models.Security) Identity {
	id := Identity{
		VisitorName:  UnknownVisitorName,
		VisitorMatch: MatchPlaceholder,
		GuardName:    DefaultGuardName,
		GuardMatch:   MatchPlaceholder,
	}

	if v, how, ok := c.ResolveVisitor(visit, visitors); ok {
		id.VisitorID = v.ID
		id.VisitorName = v.Name
		id.VisitorIDNo = v.IDNumber
		id.VisitorPhone = v.PhoneNumber
		id.VisitorMatch = how
	}

	if g, gate, how, ok := c.ResolveGuard(visit, guards); ok {
		id.GuardID = g.ID
		id.GuardName = g.Name
		id.Gate = gate
		id.GuardMatch = how
	} else if gate != "" {
		id.Gate = gate
	}

	return id
}

// ResolveVisitor menjalankan matcher berurutan, yang pertama cocok menang
func (c *Correlator) ResolveVisitor(visit models.Visit, visitors []models.Visitor) (models.Visitor, string, bool) {
	candidates := sortedVisitors(visitors)
	for _, m := range c.matchers {
		if v, ok := m.Match(visit, candidates); ok {
			return v, m.Name, true
		}
	}
	return models.Visitor{}, MatchPlaceholder, false
}

// ResolveGuard -> security_id eksplisit dulu, lalu rotasi gerbang
func (c *Correlator) ResolveGuard(visit models.Visit, guards []models.Security) (models.Security, string, string, bool) {
	candidates := sortedGuards(guards)

	if visit.SecurityID != nil {
		for _, g := range candidates {
			if g.ID == *visit.SecurityID {
				return g, g.AssignGate, MatchAssigned, true
			}
		}
	}

	gate, ok := c.gates.AssignGate(visit)
	if !ok {
		return models.Security{}, "", MatchPlaceholder, false
	}
	if g, ok := GuardForGate(gate, candidates); ok {
		return g, gate, MatchGate, true
	}
	return models.Security{}, gate, MatchPlaceholder, false
}

// GuardForGate -> utamakan guard aktif & terkonfirmasi, lalu ID terkecil
func GuardForGate(gate string, guards []models.Security) (models.Security, bool) {
	var fallback *models.Security
	for _, g := range sortedGuards(guards) {
		if g.AssignGate != gate {
			continue
		}
		if g.Active && g.Confirmed {
			return g, true
		}
		if fallback == nil {
			g := g
			fallback = &g
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.Security{}, false
}

func sortedVisitors(in []models.Visitor) []models.Visitor {
	out := make([]models.Visitor, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedGuards(in []models.Security) []models.Security {
	out := make([]models.Security, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
