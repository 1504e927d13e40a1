package command

import "github.com/sandevgo/tuskmem/internal/core"

type Deps struct {
	Provider string
	Models   ModelSwitcher
	Tools    ToolLister
	Servers  ServerLister
	Memory   Memory
	Session  *Session
}

func NewCommands(d Deps) []core.Command {
	cmds := []core.Command{
		NewToolsCommand(d.Tools),
		NewHistoryCommand(d.Memory),
		NewMemoryCommand(d.Memory, d.Session),
		NewThreadCommand(d.Memory, d.Session),
	}
	if d.Models != nil {
		cmds = append(cmds, NewModelCommand(d.Provider, d.Models))
	}
	if d.Servers != nil {
		cmds = append(cmds, NewMCPCommand(d.Servers))
	}
	return cmds
}
