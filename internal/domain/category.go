package domain

// Category is the canonical name of a ledger category.
type Category string

// CategoryInfo describes one member of a category set.
type CategoryInfo struct {
	Name    Category
	Label   string   // shown in menus and replies
	Aliases []string // extra spellings accepted by the validator
}

// Expense categories.
const (
	CategoryFood          Category = "Food"
	CategoryHousing       Category = "Housing"
	CategoryTransport     Category = "Transport"
	CategoryEntertainment Category = "Entertainment"
	CategoryMedical       Category = "Medical"
	CategoryEducation     Category = "Education"
	CategoryUtilities     Category = "Utilities"
	CategoryOther         Category = "Other"
)

// Income categories.
const (
	CategorySalary     Category = "Salary"
	CategoryBonus      Category = "Bonus"
	CategoryInvestment Category = "Investment"
	CategoryPartTime   Category = "PartTime"
)

// Sale (invoice) types.
const (
	CategoryCompany Category = "Company"
	CategoryAgent   Category = "Agent"
)

var categorySets = map[Kind][]CategoryInfo{
	KindExpense: {
		{Name: CategoryFood, Label: "食品", Aliases: []string{"餐饮", "meal", "dining"}},
		{Name: CategoryHousing, Label: "住房", Aliases: []string{"居住", "rent"}},
		{Name: CategoryTransport, Label: "交通", Aliases: []string{"transportation"}},
		{Name: CategoryEntertainment, Label: "娱乐"},
		{Name: CategoryMedical, Label: "医疗"},
		{Name: CategoryEducation, Label: "教育"},
		{Name: CategoryUtilities, Label: "水电", Aliases: []string{"bill", "billing"}},
		{Name: CategoryOther, Label: "其他"},
	},
	KindIncome: {
		{Name: CategorySalary, Label: "薪资", Aliases: []string{"wage"}},
		{Name: CategoryBonus, Label: "奖金"},
		{Name: CategoryInvestment, Label: "投资"},
		{Name: CategoryPartTime, Label: "兼职", Aliases: []string{"part-time", "freelance"}},
		{Name: CategoryOther, Label: "其他"},
	},
	KindSale: {
		{Name: CategoryCompany, Label: "公司"},
		{Name: CategoryAgent, Label: "代理"},
		{Name: CategoryOther, Label: "其他"},
	},
}

// CategorySet returns the fixed categories of a kind. The slice is a copy.
func CategorySet(kind Kind) []CategoryInfo {
	set := categorySets[kind]
	out := make([]CategoryInfo, len(set))
	copy(out, set)
	return out
}

// HasCategory reports whether c belongs to the category set of kind.
func HasCategory(kind Kind, c Category) bool {
	for _, info := range categorySets[kind] {
		if info.Name == c {
			return true
		}
	}
	return false
}

// CategoryLabel returns the display label of c within kind, or c itself.
func CategoryLabel(kind Kind, c Category) string {
	for _, info := range categorySets[kind] {
		if info.Name == c {
			return info.Label
		}
	}
	return string(c)
}
