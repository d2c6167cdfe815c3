package tools

import (
	"github.com/kalambet/rys/internal/reminder"
)

// Deps carries the collaborators of the builtin tools. Nil fields leave the
// corresponding tools unregistered, except Mailer and Inbox, whose tools
// report that email is not configured.
type Deps struct {
	Reminders *reminder.Store
	Memory    MemoryStore
	Shell     *Shell
	Files     *Files
	Browser   *Browser
	Search    *Search
	Mailer    *Mailer
	Inbox     *Inbox
}

// RegisterBuiltins registers every available builtin tool on r.
func RegisterBuiltins(r *Registry, d Deps) error {
	var all []Tool
	if d.Reminders != nil {
		all = append(all, reminderTools(d.Reminders)...)
	}
	if d.Memory != nil {
		all = append(all, memoryTools(d.Memory)...)
	}
	if d.Shell != nil {
		all = append(all, shellTools(d.Shell)...)
	}
	if d.Files != nil {
		all = append(all, fileTools(d.Files)...)
	}
	if d.Browser != nil {
		all = append(all, browseTools(d.Browser)...)
	}
	if d.Search != nil {
		all = append(all, researchTools(d.Search)...)
	}
	all = append(all, inboxTools(d.Inbox)...)
	all = append(all, emailTools(d.Mailer)...)

	for _, t := range all {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
