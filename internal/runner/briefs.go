package runner

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/overseer-dev/overseer/pkg/models"
)

//go:embed briefs.yaml
var briefsYAML []byte

var roleBriefs map[models.Role]string

func init() {
	raw := make(map[string]string)
	if err := yaml.Unmarshal(briefsYAML, &raw); err != nil {
		panic(fmt.Sprintf("runner: parse embedded briefs: %v", err))
	}
	roleBriefs = make(map[models.Role]string, len(raw))
	for role, brief := range raw {
		roleBriefs[models.Role(role)] = brief
	}
}

// BriefFor returns the fixed role brief describing responsibilities and
// success criteria for the given role.
func BriefFor(role models.Role) (string, error) {
	brief, ok := roleBriefs[role]
	if !ok {
		return "", fmt.Errorf("no brief for role %q", role)
	}
	return brief, nil
}

// ComposeBrief builds the full worker prompt: the role brief, the session
// info, the task, and the explicit instruction to report completion by
// posting a result-typed message to the blackboard before exiting.
func ComposeBrief(role models.Role, agentID, task, sharedContext string) (string, error) {
	brief, err := BriefFor(role)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(brief)
	b.WriteString("\n")
	fmt.Fprintf(&b, "AGENT SESSION INFO:\n- Agent ID: %s\n- Role: %s\n- Assigned task: %s\n", agentID, strings.ToUpper(string(role)), task)
	if sharedContext != "" {
		fmt.Fprintf(&b, "- Additional context: %s\n", sharedContext)
	}
	b.WriteString(`
INSTRUCTIONS:
1. Execute ONLY your assigned task. Do not take on additional work.
2. Post important updates to the shared blackboard as "info" messages.
3. When finished, report completion by writing a "result" message to the
   blackboard before exiting. If you cannot proceed, write an "error"
   message describing the blocker instead.
`)
	return b.String(), nil
}
