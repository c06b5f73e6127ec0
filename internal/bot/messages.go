package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-bot/internal/conversation"
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/router"
)

const (
	msgWelcome      = "Welcome to the ledger bot. What would you like to record?"
	msgIdleHint     = "Send /expense, /income or /sale to record a transaction, or /help for all commands."
	msgNothingToEnd = "There is nothing to cancel."
	msgNoDirectory  = "Master data is not available on this bot."
)

var helpText = strings.Join([]string{
	"Commands:",
	router.UsageExpense + " - record an expense",
	router.UsageIncome + " - record income",
	router.UsageSale + " - record a sales invoice",
	router.UsageReport + " - show totals for a month or year",
	router.UsageExport + " - download the records as a spreadsheet",
	"/categories - list valid categories",
	"/settings - manage persons in charge, agents and suppliers",
	"/cancel - abandon the current entry",
	"",
	"Without arguments a command asks for each field in turn.",
	"Dates look like 2024-06-10 and default to today.",
	"Send a photo at any time to attach a receipt.",
}, "\n")

var menuOptions = []conversation.Option{
	{Label: "Expense " + domain.KindExpense.Label(), Data: "/expense"},
	{Label: "Income " + domain.KindIncome.Label(), Data: "/income"},
	{Label: "Sale " + domain.KindSale.Label(), Data: "/sale"},
	{Label: "Report", Data: "/report"},
	{Label: "Export", Data: "/export"},
	{Label: "Settings", Data: "/settings"},
	{Label: "Help", Data: "/help"},
}

var settingsText = strings.Join([]string{
	"Settings",
	"",
	router.UsageAddPIC + " - add a person in charge",
	router.UsageAddAgent + " - add a sales agent, e.g. /addagent Ali 900101-01-1234 5%",
	router.UsageAddSupplier + " - add a supplier (" + strings.Join(domain.SupplierCategories, ", ") + ")",
	"",
	"Agent sales earn commission when the bill-to or remark names the agent.",
}, "\n")

var settingsOptions = []conversation.Option{
	{Label: "Persons in charge", Data: "/pics"},
	{Label: "Agents", Data: "/agents"},
	{Label: "Suppliers", Data: "/suppliers"},
}

func partyLine(p domain.Party) string {
	switch p.Role {
	case domain.RoleAgent:
		return fmt.Sprintf("%s (IC %s, commission %s)", p.Name, p.IC, domain.FormatRate(p.Rate))
	case domain.RoleSupplier:
		return fmt.Sprintf("%s: %s", p.Category, p.Name)
	}
	return p.Name
}

func partiesText(role domain.Role, parties []domain.Party) string {
	if len(parties) == 0 {
		return fmt.Sprintf("No %s registered yet.", role.Label())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):", role.Label(), len(parties))
	for i, p := range parties {
		fmt.Fprintf(&b, "\n%d. %s", i+1, partyLine(p))
	}
	return b.String()
}

func partyAddedText(p domain.Party) string {
	return fmt.Sprintf("Registered %s: %s", p.Role.Label(), partyLine(p))
}

func duplicatePartyText(p domain.Party) string {
	if p.Role == domain.RoleAgent {
		return fmt.Sprintf("%s %s or IC %s is already registered.", p.Role.Label(), p.Name, p.IC)
	}
	return fmt.Sprintf("%s %s is already registered.", p.Role.Label(), p.Name)
}

func categoriesText() string {
	var b strings.Builder
	b.WriteString("Categories:")
	for _, kind := range domain.Kinds {
		labels := make([]string, 0)
		for _, info := range domain.CategorySet(kind) {
			labels = append(labels, fmt.Sprintf("%s (%s)", info.Label, info.Name))
		}
		fmt.Fprintf(&b, "\n%s: %s", kind.Label(), strings.Join(labels, ", "))
	}
	return b.String()
}

func usageText(a router.BadArguments) string {
	return fmt.Sprintf("Could not read the arguments of %s.\nUsage: %s", a.Command, a.Usage)
}

func unrecognizedText(command string) string {
	return fmt.Sprintf("Unknown command %s.\n\n%s", command, helpText)
}

func gatewayText(action string, err error) string {
	reason := "storage unavailable"
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		reason = "storage access denied"
	case errors.Is(err, domain.ErrTimeout):
		reason = "storage timed out"
	}
	return fmt.Sprintf("Could not %s right now (%s). Please try again in a moment.", action, reason)
}

func photoSavedText(ref string) string {
	return "Photo saved: " + ref
}
