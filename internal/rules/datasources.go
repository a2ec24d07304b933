package rules

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

// CollectDataSources gathers the data-source references of a rule element.
// All <pv_name> elements come first in document order, followed by legacy
// <pv> elements. Duplicates are kept; each position is its own binding.
func CollectDataSources(mp macros.Provider, rule *etree.Element) []types.DataSourceRef {
	var refs []types.DataSourceRef
	for _, tag := range []string{"pv_name", "pv"} {
		for _, e := range rule.SelectElements(tag) {
			raw := strings.TrimSpace(e.Text())
			refs = append(refs, types.DataSourceRef{
				Raw:      raw,
				Resolved: strings.TrimSpace(macros.Expand(mp, raw)),
				Legacy:   tag == "pv",
			})
		}
	}
	return refs
}
