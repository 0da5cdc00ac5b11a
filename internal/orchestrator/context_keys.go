package orchestrator

// Context keys every invariant Pre/Post/Rollback procedure reads or writes
// on the shared *invariant.Context for one enforce() call. Components never
// import each other directly for this data; they agree on these string keys
// instead, the same way the kernel's Context itself is domain-agnostic.
const (
	keyInvoice           = "invoice"
	keySupplierAccount   = "supplier_account"
	keyBuyerAccount      = "buyer_account"
	keyCapitalAccount    = "capital_account"
	keyQuote             = "quote"
	keyFraudScore        = "fraud_score"
	keyFXRate            = "fx_rate"
	keySettlement        = "settlement"
	keyRail              = "rail"
	keyAuthenticatedUser = "authenticated_user"
	keyAcceptanceSig     = "acceptance_signature"
	keyCompetitionRate   = "competition_rate"
	keyRecentScores      = "recent_high_scores" // not read by the catalog; 302 checks the current fraud score
	keyCreditRequest     = "credit_request"      // decimal.Decimal, the new amount; 005 adds the buyer's outstanding balance
	keyActualCharge      = "actual_charge"       // decimal.Decimal, for 502
	keyQuotedTotalCost   = "quoted_total_cost"   // decimal.Decimal, the locked quote cost, for 502
	keyTransitionTo      = "transition_to"       // invoice.Status, the requested target state for 101
)
