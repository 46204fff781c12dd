package transaction

import (
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/tax"
)

const (
	IncomeStatusReceived            = "RECEIVED"
	IncomeStatusWaitingInvoiceIssue = "WAITING_INVOICE_ISSUE"
	IncomeStatusInvoiceIssued       = "INVOICE_ISSUED"
	IncomeStatusInvoiceSent         = "INVOICE_SENT"
	IncomeStatusWHTPendingCert      = "WHT_PENDING_CERT"
	IncomeStatusWHTCertReceived     = "WHT_CERT_RECEIVED"
)

type IncomeStrategy struct {
	baseStrategy
}

// NewIncomeStrategy mirrors the expense flow: the company issues the invoice and the customer sends the WHT certificate.
func NewIncomeStrategy() *IncomeStrategy {
	return &IncomeStrategy{baseStrategy{
		txnType:      TypeIncome,
		module:       permission.ModuleIncomes,
		labels:       Labels{Singular: "income", Plural: "incomes"},
		fields:       FieldNames{Date: "receive_date", NetAmount: "net_received", WHTFlag: "is_wht_deducted", DocumentFlag: "has_invoice"},
		direction:    tax.Inflow,
		accountClass: "REVENUE",
		statuses: []Status{
			{Code: StatusDraft, Label: "Draft", Color: "gray"},
			{Code: IncomeStatusReceived, Label: "Received", Color: "blue"},
			{Code: IncomeStatusWaitingInvoiceIssue, Label: "Invoice to issue", Color: "orange"},
			{Code: IncomeStatusInvoiceIssued, Label: "Invoice issued", Color: "cyan"},
			{Code: IncomeStatusInvoiceSent, Label: "Invoice sent", Color: "sky"},
			{Code: IncomeStatusWHTPendingCert, Label: "Waiting for WHT certificate", Color: "purple"},
			{Code: IncomeStatusWHTCertReceived, Label: "WHT certificate received", Color: "violet"},
			{Code: StatusReadyForAccounting, Label: "Ready for accounting", Color: "green"},
			{Code: StatusSentToAccountant, Label: "Sent to accountant", Color: "teal"},
		},
		transitions: map[string][]string{
			StatusDraft: {
				IncomeStatusReceived, IncomeStatusWaitingInvoiceIssue, IncomeStatusInvoiceIssued,
				IncomeStatusWHTPendingCert, StatusReadyForAccounting,
			},
			IncomeStatusReceived:            {IncomeStatusWaitingInvoiceIssue, IncomeStatusInvoiceIssued, StatusReadyForAccounting},
			IncomeStatusWaitingInvoiceIssue: {IncomeStatusInvoiceIssued},
			IncomeStatusInvoiceIssued:       {IncomeStatusInvoiceSent, IncomeStatusWaitingInvoiceIssue},
			IncomeStatusInvoiceSent:         {IncomeStatusWHTPendingCert, StatusReadyForAccounting},
			IncomeStatusWHTPendingCert:      {IncomeStatusWHTCertReceived},
			IncomeStatusWHTCertReceived:     {StatusReadyForAccounting},
			StatusReadyForAccounting:        {StatusSentToAccountant, IncomeStatusWaitingInvoiceIssue},
			StatusSentToAccountant:          {StatusReadyForAccounting},
		},
		waitingStatus:    IncomeStatusWaitingInvoiceIssue,
		whtPendingStatus: IncomeStatusWHTPendingCert,
	}}
}
