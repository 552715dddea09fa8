package model

// PlanCode identifies a purchasable tier.
type PlanCode string

const (
	PlanFree         PlanCode = "free"
	PlanStarter      PlanCode = "starter"
	PlanProfessional PlanCode = "professional"
	PlanEnterprise   PlanCode = "enterprise"

	PlanPayrollCredit  PlanCode = "payg_payroll"
	PlanScanCredit     PlanCode = "payg_scan"
	PlanContractCredit PlanCode = "payg_contract"
	PlanPrivacyCredit  PlanCode = "payg_privacy"
)

// Feature is a gated capability that can also be bought per use.
type Feature string

const (
	FeaturePayroll  Feature = "payroll"
	FeatureScan     Feature = "scan"
	FeatureContract Feature = "contract"
	FeaturePrivacy  Feature = "privacy"
)

// Features lists every credit-backed feature in display order.
var Features = []Feature{FeaturePayroll, FeatureScan, FeatureContract, FeaturePrivacy}

func (f Feature) Valid() bool {
	for _, x := range Features {
		if f == x {
			return true
		}
	}
	return false
}

type PlanKind string

const (
	PlanKindDefault   PlanKind = "default"
	PlanKindRecurring PlanKind = "recurring"
	PlanKindPayPerUse PlanKind = "pay_per_use"
)

// Capabilities is the fixed privilege record attached to a plan.
type Capabilities struct {
	MaxEmployees    int  `json:"max_employees"` // 0 means unlimited
	Payroll         bool `json:"payroll"`
	ReceiptScan     bool `json:"receipt_scan"`
	Contracts       bool `json:"contracts"`
	PrivacyPolicy   bool `json:"privacy_policy"`
	PayPerUseTopUps bool `json:"pay_per_use_top_ups"`
	APIAccess       bool `json:"api_access"`
	PrioritySupport bool `json:"priority_support"`
	MultiCompany    bool `json:"multi_company"`
}

// Includes reports whether the capability record covers f without credits.
func (c Capabilities) Includes(f Feature) bool {
	switch f {
	case FeaturePayroll:
		return c.Payroll
	case FeatureScan:
		return c.ReceiptScan
	case FeatureContract:
		return c.Contracts
	case FeaturePrivacy:
		return c.PrivacyPolicy
	}
	return false
}

type Plan struct {
	Code         PlanCode
	Name         string
	Kind         PlanKind
	PriceKES     int64
	CreditFor    Feature // pay-per-use tiers only
	Capabilities Capabilities
}

func (p Plan) IsRecurring() bool { return p.Kind == PlanKindRecurring }
func (p Plan) IsPayPerUse() bool { return p.Kind == PlanKindPayPerUse }

var planCatalog = map[PlanCode]Plan{
	PlanFree: {
		Code: PlanFree, Name: "Free", Kind: PlanKindDefault,
		Capabilities: Capabilities{MaxEmployees: 0, PayPerUseTopUps: true},
	},
	PlanStarter: {
		Code: PlanStarter, Name: "Starter", Kind: PlanKindRecurring, PriceKES: 999,
		Capabilities: Capabilities{MaxEmployees: 10, Payroll: true, ReceiptScan: true, PayPerUseTopUps: true},
	},
	PlanProfessional: {
		Code: PlanProfessional, Name: "Professional", Kind: PlanKindRecurring, PriceKES: 2499,
		Capabilities: Capabilities{MaxEmployees: 50, Payroll: true, ReceiptScan: true, Contracts: true, PrivacyPolicy: true, PayPerUseTopUps: true},
	},
	PlanEnterprise: {
		Code: PlanEnterprise, Name: "Enterprise", Kind: PlanKindRecurring, PriceKES: 7999,
		Capabilities: Capabilities{
			MaxEmployees: 0, Payroll: true, ReceiptScan: true, Contracts: true, PrivacyPolicy: true,
			APIAccess: true, PrioritySupport: true, MultiCompany: true,
		},
	},
	PlanPayrollCredit:  {Code: PlanPayrollCredit, Name: "Payroll run", Kind: PlanKindPayPerUse, PriceKES: 199, CreditFor: FeaturePayroll},
	PlanScanCredit:     {Code: PlanScanCredit, Name: "Receipt scan", Kind: PlanKindPayPerUse, PriceKES: 49, CreditFor: FeatureScan},
	PlanContractCredit: {Code: PlanContractCredit, Name: "Contract", Kind: PlanKindPayPerUse, PriceKES: 499, CreditFor: FeatureContract},
	PlanPrivacyCredit:  {Code: PlanPrivacyCredit, Name: "Privacy policy", Kind: PlanKindPayPerUse, PriceKES: 499, CreditFor: FeaturePrivacy},
}

// LookupPlan returns the catalog entry for code.
func LookupPlan(code string) (Plan, bool) {
	p, ok := planCatalog[PlanCode(code)]
	return p, ok
}

// CapabilitiesFor maps a plan code to its privileges; unknown codes get the free tier.
func CapabilitiesFor(code string) Capabilities {
	if p, ok := planCatalog[PlanCode(code)]; ok && p.Kind != PlanKindPayPerUse {
		return p.Capabilities
	}
	return planCatalog[PlanFree].Capabilities
}
