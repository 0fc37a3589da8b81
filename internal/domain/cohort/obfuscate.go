package cohort

import (
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"sort"
	"strings"

	"github.com/uwrit/leafgo/internal/domain/panel"
)

// Obfuscator applies de-identification noise to patient counts before they
// leave the server. The noise is a function of the query's concept makeup,
// so re-running or rearranging a logically identical query can never be used
// to average the noise away.
type Obfuscator struct {
	Enabled          bool
	Shift            int
	LowCellThreshold int
}

// Obfuscate mutates count in place. Counts at or below the low-cell
// threshold are masked to the threshold itself; all others are shifted by a
// deterministic value in [-Shift, Shift].
func (o Obfuscator) Obfuscate(count *PatientCount, q *panel.CountQuery) {
	if !o.Enabled {
		return
	}

	if count.Value <= o.LowCellThreshold {
		count.Value = o.LowCellThreshold
		count.UnderThreshold = true
		return
	}

	rng := rand.New(rand.NewSource(conceptSeed(q.Panels)))
	count.Value += rng.Intn(2*o.Shift+1) - o.Shift
	count.PlusMinus = o.Shift
}

// conceptSeed hashes the query's concept ids into a seed. Ids are sorted
// within each sub-panel and panel strings are sorted across the query, so
// any rearrangement of the same concepts produces the same seed.
func conceptSeed(panels []panel.Panel) int64 {
	panelStrings := make([]string, 0, len(panels))
	for _, p := range panels {
		subStrings := make([]string, 0, len(p.SubPanels))
		for _, sp := range p.SubPanels {
			ids := make([]string, 0, len(sp.PanelItems))
			for _, item := range sp.PanelItems {
				ids = append(ids, item.Concept.ID.String())
			}
			sort.Strings(ids)
			subStrings = append(subStrings, strings.Join(ids, ","))
		}
		panelStrings = append(panelStrings, strings.Join(subStrings, ","))
	}
	sort.Strings(panelStrings)

	sum := md5.Sum([]byte(strings.Join(panelStrings, ",")))
	return int64(binary.LittleEndian.Uint32(sum[:4]))
}
