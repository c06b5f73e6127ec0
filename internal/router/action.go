// Package router turns a chat command into an Action for the bot to carry out.
package router

import (
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/record"
)

// Action is the outcome of dispatching one command. The set of actions is
// closed: only types in this package implement it.
type Action interface {
	isAction()
}

// StartSession opens a conversation for Kind seeded with the fields that
// were already valid. Invalid is the validation error of the first rejected
// argument, if any.
type StartSession struct {
	Kind    domain.Kind
	Seed    record.Builder
	Invalid error
}

// InvokeDirect commits a record whose fields all arrived with the command.
type InvokeDirect struct {
	Kind     domain.Kind
	Record   domain.TransactionRecord
	Warnings []string
}

// RunReport replies with the summary of Period.
type RunReport struct {
	Period domain.ReportPeriod
}

// ExportReport sends Period as a spreadsheet document.
type ExportReport struct {
	Period domain.ReportPeriod
}

// ShowSettings replies with the master-data menu.
type ShowSettings struct{}

// AddParty registers a person in charge, agent or supplier.
type AddParty struct {
	Party domain.Party
}

// ListParties replies with every registered entry of Role.
type ListParties struct {
	Role domain.Role
}

// ShowMenu replies with the main menu.
type ShowMenu struct{}

// ShowHelp replies with the command list.
type ShowHelp struct{}

// ShowCategories lists the category set of every kind.
type ShowCategories struct{}

// Cancel drops the chat's session.
type Cancel struct{}

// BadArguments means a known command got arguments it cannot use.
type BadArguments struct {
	Command string
	Usage   string
}

// Unrecognized is any command outside the command table.
type Unrecognized struct {
	Command string
}

func (StartSession) isAction()   {}
func (InvokeDirect) isAction()   {}
func (RunReport) isAction()      {}
func (ExportReport) isAction()   {}
func (ShowSettings) isAction()   {}
func (AddParty) isAction()       {}
func (ListParties) isAction()    {}
func (ShowMenu) isAction()       {}
func (ShowHelp) isAction()       {}
func (ShowCategories) isAction() {}
func (Cancel) isAction()         {}
func (BadArguments) isAction()   {}
func (Unrecognized) isAction()   {}
