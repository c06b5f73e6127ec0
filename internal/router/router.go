package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/dvloznov/finance-bot/internal/record"
	"github.com/dvloznov/finance-bot/internal/validation"
	"github.com/shopspring/decimal"
)

// Usage lines for commands taking arguments.
const (
	UsageExpense = "/expense [date] [category amount note merchant]"
	UsageIncome  = "/income [date] [category amount note]"
	UsageSale    = "/sale [date] [type amount bill-to remark]"
	UsageReport  = "/report [YYYY [MM]] or /report YYYY-MM"
	UsageExport  = "/export [YYYY [MM]]"

	UsageAddPIC      = "/addpic name"
	UsageAddAgent    = "/addagent name IC [commission rate]"
	UsageAddSupplier = "/addsupplier category product"
)

type route int

const (
	routeMenu route = iota
	routeHelp
	routeCancel
	routeCategories
	routeExpense
	routeIncome
	routeSale
	routeReport
	routeExport
	routeSettings
	routeAddPIC
	routeAddAgent
	routeAddSupplier
	routeListPICs
	routeListAgents
	routeListSuppliers
)

var commands = map[string]route{
	"start":       routeMenu,
	"menu":        routeMenu,
	"help":        routeHelp,
	"cancel":      routeCancel,
	"categories":  routeCategories,
	"expense":     routeExpense,
	"add_expense": routeExpense,
	"cost":        routeExpense,
	"income":      routeIncome,
	"add_income":  routeIncome,
	"sale":        routeSale,
	"sales":       routeSale,
	"report":      routeReport,
	"export":      routeExport,

	"settings":     routeSettings,
	"addpic":       routeAddPIC,
	"add_pic":      routeAddPIC,
	"addperson":    routeAddPIC,
	"addagent":     routeAddAgent,
	"add_agent":    routeAddAgent,
	"addsupplier":  routeAddSupplier,
	"add_supplier": routeAddSupplier,
	"pics":         routeListPICs,
	"agents":       routeListAgents,
	"suppliers":    routeListSuppliers,
}

var listRoutes = map[route]domain.Role{
	routeListPICs:      domain.RolePIC,
	routeListAgents:    domain.RoleAgent,
	routeListSuppliers: domain.RoleSupplier,
}

var recordRoutes = map[route]domain.Kind{
	routeExpense: domain.KindExpense,
	routeIncome:  domain.KindIncome,
	routeSale:    domain.KindSale,
}

var usages = map[domain.Kind]string{
	domain.KindExpense: UsageExpense,
	domain.KindIncome:  UsageIncome,
	domain.KindSale:    UsageSale,
}

// NormalizeCommand strips the leading slash and any @botname suffix and
// lowercases the rest.
func NormalizeCommand(command string) string {
	c := strings.TrimSpace(command)
	c = strings.TrimPrefix(c, "/")
	if i := strings.IndexByte(c, '@'); i >= 0 {
		c = c[:i]
	}
	return strings.ToLower(c)
}

// IsKnown reports whether command is in the command table.
func IsKnown(command string) bool {
	_, ok := commands[NormalizeCommand(command)]
	return ok
}

// RecordKind returns the kind a record command creates. ok is false for
// every other command.
func RecordKind(command string) (domain.Kind, bool) {
	kind, ok := recordRoutes[commands[NormalizeCommand(command)]]
	return kind, ok
}

// Dispatch maps a command and its whitespace-separated arguments to an Action.
// It never fails: unknown commands yield Unrecognized.
func Dispatch(ctx context.Context, command string, args []string, chatID int64, now time.Time) Action {
	name := NormalizeCommand(command)
	log := logger.ForChat(ctx, chatID).With().Str(logger.FieldCommand, name).Logger()

	r, ok := commands[name]
	if !ok {
		log.Debug().Msg("unrecognized command")
		return Unrecognized{Command: command}
	}

	switch r {
	case routeMenu:
		return ShowMenu{}
	case routeHelp:
		return ShowHelp{}
	case routeCancel:
		return Cancel{}
	case routeCategories:
		return ShowCategories{}
	case routeReport:
		period, err := ParsePeriod(args, now, false)
		if err != nil {
			log.Debug().Err(err).Msg("bad report arguments")
			return BadArguments{Command: "/report", Usage: UsageReport}
		}
		return RunReport{Period: period}
	case routeExport:
		period, err := ParsePeriod(args, now, true)
		if err != nil {
			log.Debug().Err(err).Msg("bad export arguments")
			return BadArguments{Command: "/export", Usage: UsageExport}
		}
		return ExportReport{Period: period}
	case routeSettings:
		return ShowSettings{}
	case routeListPICs, routeListAgents, routeListSuppliers:
		return ListParties{Role: listRoutes[r]}
	case routeAddPIC, routeAddAgent, routeAddSupplier:
		action := addParty(r, args)
		if bad, ok := action.(BadArguments); ok {
			log.Debug().Str("usage", bad.Usage).Msg("bad master data arguments")
		}
		return action
	}

	kind := recordRoutes[r]
	action := direct(kind, args, now)
	log.Debug().Str(logger.FieldKind, kind.String()).Str("action", fmt.Sprintf("%T", action)).Msg("dispatched record command")
	return action
}

// direct validates positional arguments in collection order. A leading
// date token is optional and the last field takes every remaining word.
// The first rejected or missing field ends the scan; later tokens are dropped.
func direct(kind domain.Kind, args []string, now time.Time) Action {
	b := record.Start(kind)

	tokens := args
	rawDate := ""
	if len(tokens) > 0 && validation.LooksLikeDate(tokens[0]) {
		rawDate, tokens = tokens[0], tokens[1:]
	}
	date, err := validation.Validate(domain.FieldDate, rawDate, kind, now)
	if err != nil {
		return BadArguments{Command: "/" + kind.String(), Usage: usages[kind]}
	}
	b = b.Supply(domain.FieldDate, date)

	fields := domain.RequiredFields(kind)
	for i, field := range fields {
		if i >= len(tokens) {
			return StartSession{Kind: kind, Seed: b}
		}
		raw := tokens[i]
		if i == len(fields)-1 {
			raw = strings.Join(tokens[i:], " ")
		}
		if field.IsFreeText() && strings.TrimSpace(raw) == "-" {
			raw = ""
		}

		v, err := validation.Validate(field, raw, kind, now)
		if err != nil {
			return StartSession{Kind: kind, Seed: b, Invalid: err}
		}
		b = b.Supply(field, v)
	}

	rec, err := b.Finalize()
	if err != nil {
		return StartSession{Kind: kind, Seed: b}
	}
	return InvokeDirect{Kind: kind, Record: rec, Warnings: b.Warnings()}
}

// addParty reads the arguments of a master-data command. Names may hold
// spaces: an agent's IC and optional rate are taken from the end.
func addParty(r route, args []string) Action {
	switch r {
	case routeAddPIC:
		if len(args) == 0 {
			return BadArguments{Command: "/addpic", Usage: UsageAddPIC}
		}
		return AddParty{Party: domain.Party{Role: domain.RolePIC, Name: strings.Join(args, " ")}}
	case routeAddAgent:
		bad := BadArguments{Command: "/addagent", Usage: UsageAddAgent}
		tokens := args
		rate := decimal.Zero
		if len(tokens) >= 3 {
			if v, err := validation.ValidateRate(tokens[len(tokens)-1]); err == nil {
				rate, tokens = v, tokens[:len(tokens)-1]
			}
		}
		if len(tokens) < 2 {
			return bad
		}
		return AddParty{Party: domain.Party{
			Role: domain.RoleAgent,
			Name: strings.Join(tokens[:len(tokens)-1], " "),
			IC:   tokens[len(tokens)-1],
			Rate: rate,
		}}
	default:
		bad := BadArguments{Command: "/addsupplier", Usage: UsageAddSupplier}
		if len(args) < 2 {
			return bad
		}
		category, err := validation.ValidateSupplierCategory(args[0])
		if err != nil {
			return bad
		}
		return AddParty{Party: domain.Party{Role: domain.RoleSupplier, Category: category, Name: strings.Join(args[1:], " ")}}
	}
}

var yearMonth = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})$`)

// ParsePeriod reads report arguments. No arguments means the current month,
// or the current year when wholeYear is set.
func ParsePeriod(args []string, now time.Time, wholeYear bool) (domain.ReportPeriod, error) {
	switch len(args) {
	case 0:
		if wholeYear {
			return domain.ReportPeriod{Year: now.Year()}, nil
		}
		return domain.PeriodOf(now), nil
	case 1:
		if m := yearMonth.FindStringSubmatch(args[0]); m != nil {
			return period(m[1], m[2], now)
		}
		return period(args[0], "", now)
	case 2:
		return period(args[0], args[1], now)
	}
	return domain.ReportPeriod{}, fmt.Errorf("ParsePeriod: too many arguments")
}

func period(rawYear, rawMonth string, now time.Time) (domain.ReportPeriod, error) {
	year, err := strconv.Atoi(rawYear)
	if err != nil || len(rawYear) != 4 {
		return domain.ReportPeriod{}, fmt.Errorf("ParsePeriod: invalid year %q", rawYear)
	}
	if year < 2000 || year > now.Year()+1 {
		return domain.ReportPeriod{}, fmt.Errorf("ParsePeriod: year %d out of range", year)
	}
	if rawMonth == "" {
		return domain.ReportPeriod{Year: year}, nil
	}
	month, err := strconv.Atoi(rawMonth)
	if err != nil || month < 1 || month > 12 {
		return domain.ReportPeriod{}, fmt.Errorf("ParsePeriod: invalid month %q", rawMonth)
	}
	return domain.ReportPeriod{Year: year, Month: time.Month(month)}, nil
}
