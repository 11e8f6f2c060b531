package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

//go:embed template/master.txt
var masterRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Master string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{Master: strings.TrimSpace(masterRaw)}
}

// Load returns the embedded set, with the master prompt replaced by the
// contents of overridePath when it is set.
func Load(overridePath string) (PromptSet, error) {
	set := LoadPromptSet()
	if strings.TrimSpace(overridePath) == "" {
		return set, nil
	}
	raw, err := os.ReadFile(overridePath)
	if err != nil {
		return PromptSet{}, fmt.Errorf("read prompt %s: %w", overridePath, err)
	}
	master := strings.TrimSpace(string(raw))
	if master == "" {
		return PromptSet{}, fmt.Errorf("%w: %s is empty", contractx.ErrPromptMissing, overridePath)
	}
	set.Master = master
	return set, nil
}
