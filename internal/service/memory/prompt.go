package memory

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

const UpdateWorkingMemoryTool = "update_working_memory"

type PromptConfig interface {
	GetSystemPath() string
	GetIdentityPath() string
}

type SysPrompt struct {
	cfg PromptConfig
}

func NewSysPrompt(cfg PromptConfig) *SysPrompt {
	return &SysPrompt{
		cfg: cfg,
	}
}

// Build returns the system blocks for one turn. wm is nil when working
// memory is disabled.
func (p *SysPrompt) Build(wm *core.WorkingMemory, mode core.WorkingMemoryMode, enabled bool) []string {
	blocks := make([]string, 0, 3)
	readFile := func(path string) string {
		if path == "" {
			return ""
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(content))
	}

	if p.cfg != nil {
		if content := readFile(p.cfg.GetSystemPath()); content != "" {
			blocks = append(blocks, content)
		}
		if content := readFile(p.cfg.GetIdentityPath()); content != "" {
			blocks = append(blocks, "YOUR IDENTITY:\n"+content)
		}
	}

	if enabled {
		blocks = append(blocks, workingMemoryBlock(wm, mode))
	}
	return blocks
}

func workingMemoryBlock(wm *core.WorkingMemory, mode core.WorkingMemoryMode) string {
	var sb strings.Builder
	sb.WriteString("WORKING MEMORY:\n")

	data := map[string]any{}
	if wm != nil && wm.Data != nil {
		data = wm.Data
	}
	// map keys marshal sorted
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}
	sb.Write(raw)

	if mode == core.WorkingMemoryToolCall {
		sb.WriteString("\n\nCall the " + UpdateWorkingMemoryTool + " tool to record durable facts about the user or the task. ")
		sb.WriteString("Pass only the keys that change; a null value removes a key.")
	}
	return sb.String()
}
