package transaction

import (
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/tax"
)

const (
	ExpenseStatusPaid               = "PAID"
	ExpenseStatusWaitingTaxInvoice  = "WAITING_TAX_INVOICE"
	ExpenseStatusTaxInvoiceReceived = "TAX_INVOICE_RECEIVED"
	ExpenseStatusWHTPendingIssue    = "WHT_PENDING_ISSUE"
	ExpenseStatusWHTIssued          = "WHT_ISSUED"
	ExpenseStatusWHTSentToVendor    = "WHT_SENT_TO_VENDOR"
)

type ExpenseStrategy struct {
	baseStrategy
}

func NewExpenseStrategy() *ExpenseStrategy {
	return &ExpenseStrategy{baseStrategy{
		txnType:      TypeExpense,
		module:       permission.ModuleExpenses,
		labels:       Labels{Singular: "expense", Plural: "expenses"},
		fields:       FieldNames{Date: "bill_date", NetAmount: "net_paid", WHTFlag: "is_wht", DocumentFlag: "has_tax_invoice"},
		direction:    tax.Outflow,
		accountClass: "EXPENSE",
		statuses: []Status{
			{Code: StatusDraft, Label: "Draft", Color: "gray"},
			{Code: ExpenseStatusPaid, Label: "Paid", Color: "blue"},
			{Code: ExpenseStatusWaitingTaxInvoice, Label: "Waiting for tax invoice", Color: "orange"},
			{Code: ExpenseStatusTaxInvoiceReceived, Label: "Tax invoice received", Color: "cyan"},
			{Code: ExpenseStatusWHTPendingIssue, Label: "WHT certificate to issue", Color: "purple"},
			{Code: ExpenseStatusWHTIssued, Label: "WHT certificate issued", Color: "violet"},
			{Code: ExpenseStatusWHTSentToVendor, Label: "WHT certificate sent", Color: "indigo"},
			{Code: StatusReadyForAccounting, Label: "Ready for accounting", Color: "green"},
			{Code: StatusSentToAccountant, Label: "Sent to accountant", Color: "teal"},
		},
		transitions: map[string][]string{
			StatusDraft: {
				ExpenseStatusPaid, ExpenseStatusWaitingTaxInvoice, ExpenseStatusTaxInvoiceReceived,
				ExpenseStatusWHTPendingIssue, StatusReadyForAccounting,
			},
			ExpenseStatusPaid:               {ExpenseStatusWaitingTaxInvoice, ExpenseStatusTaxInvoiceReceived, StatusReadyForAccounting},
			ExpenseStatusWaitingTaxInvoice:  {ExpenseStatusTaxInvoiceReceived, ExpenseStatusWHTPendingIssue, StatusReadyForAccounting},
			ExpenseStatusTaxInvoiceReceived: {ExpenseStatusWHTPendingIssue, StatusReadyForAccounting, ExpenseStatusWaitingTaxInvoice},
			ExpenseStatusWHTPendingIssue:    {ExpenseStatusWHTIssued},
			ExpenseStatusWHTIssued:          {ExpenseStatusWHTSentToVendor, ExpenseStatusWHTPendingIssue},
			ExpenseStatusWHTSentToVendor:    {StatusReadyForAccounting},
			StatusReadyForAccounting:        {StatusSentToAccountant, ExpenseStatusWaitingTaxInvoice},
			StatusSentToAccountant:          {StatusReadyForAccounting},
		},
		waitingStatus:    ExpenseStatusWaitingTaxInvoice,
		whtPendingStatus: ExpenseStatusWHTPendingIssue,
		allowPayers:      true,
	}}
}
