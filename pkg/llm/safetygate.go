package llm

import (
	"github.com/go-logr/logr"

	"github.com/kubernaut-bdi/agent/pkg/types"
)

// FilterActions implements spec §4.7's safety gate: any action name not
// in the registered set is dropped with a warning, and any registered
// but Irreversible action is dropped unconditionally, regardless of
// source (Proposer's ordered list or Interpreter's suggested_actions).
func FilterActions(names []string, registry *types.Registry, log logr.Logger) []string {
	var out []string
	for _, name := range names {
		action, ok := registry.Get(name)
		if !ok {
			log.Info("llm safety gate: dropping unregistered action", "action", name)
			continue
		}
		if action.Effect == types.Irreversible {
			log.Info("llm safety gate: dropping irreversible action proposed by the LLM", "action", name)
			continue
		}
		out = append(out, name)
	}
	return out
}
