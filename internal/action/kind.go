package action

// Kind enumerates the business actions a chunk can resolve to.
type Kind int

const (
	KindNone Kind = iota
	KindTermination
	KindCarrierSpecificTermination
	KindCarrierSwitch
	KindCarrierSwitchRenewal
	KindCobraReinstate
	KindCobraSwitchover
	KindDependentAdd
	KindDependentDrop
	KindInitialEnrollment
	KindMarketChange
	KindNewPolicyReinstate
	KindPlanChangeDependentAdd
	KindPlanChangeDependentDrop
	KindPlanChangeSameCarrier
	KindRenewalDependentAdd
	KindRetroAddAndTerm
	KindRetroAssistanceChange
	KindRetroContinuityAndTerm
	KindRetroDependentAddToActive
	KindRetroDependentDropToActive
	KindSimpleProductChange
	KindTobaccoOrRatingAreaChange
	KindConcurrentCancelAndTerm
	KindPriorYearPurchaseRenewalCancel
)

var kindNames = map[Kind]string{
	KindNone:                           "None",
	KindTermination:                    "Termination",
	KindCarrierSpecificTermination:     "CarrierSpecificTermination",
	KindCarrierSwitch:                  "CarrierSwitch",
	KindCarrierSwitchRenewal:           "CarrierSwitchRenewal",
	KindCobraReinstate:                 "CobraReinstate",
	KindCobraSwitchover:                "CobraSwitchover",
	KindDependentAdd:                   "DependentAdd",
	KindDependentDrop:                  "DependentDrop",
	KindInitialEnrollment:              "InitialEnrollment",
	KindMarketChange:                   "MarketChange",
	KindNewPolicyReinstate:             "NewPolicyReinstate",
	KindPlanChangeDependentAdd:         "PlanChangeDependentAdd",
	KindPlanChangeDependentDrop:        "PlanChangeDependentDrop",
	KindPlanChangeSameCarrier:          "PlanChangeSameCarrier",
	KindRenewalDependentAdd:            "RenewalDependentAdd",
	KindRetroAddAndTerm:                "RetroAddAndTerm",
	KindRetroAssistanceChange:          "RetroAssistanceChange",
	KindRetroContinuityAndTerm:         "RetroContinuityAndTerm",
	KindRetroDependentAddToActive:      "RetroDependentAddToActive",
	KindRetroDependentDropToActive:     "RetroDependentDropToActive",
	KindSimpleProductChange:            "SimpleProductChange",
	KindTobaccoOrRatingAreaChange:      "TobaccoOrRatingAreaChange",
	KindConcurrentCancelAndTerm:        "ConcurrentCancelAndTerm",
	KindPriorYearPurchaseRenewalCancel: "PriorYearPurchaseRenewalCancel",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}
