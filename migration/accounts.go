package migration

import (
	"fmt"

	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccountResolver maps external ledger ids onto internal accounts. Results
// for the banking side are cached per (ledgerId, direction) for the lifetime
// of the resolver instance; the cache is instance-scoped and safe to discard.
type AccountResolver struct {
	logger   *logrus.Logger
	dlog     *DebugLog
	business *models.Business

	bankCache map[string]int
}

func NewAccountResolver(logger *logrus.Logger, dlog *DebugLog, business *models.Business) *AccountResolver {
	return &AccountResolver{
		logger:    logger,
		dlog:      dlog,
		business:  business,
		bankCache: make(map[string]int),
	}
}

// ResolveBankAccount finds the bank/cash account for a payment, in strict
// priority order:
//  1. direct ledger mapping, accepted only when the mapped account is
//     Bank or Cash
//  2. payment method configuration keyed by the ledger code
//  3. bank-name pattern match against the description
//  4. direction-aware default (primary bank for incoming payments, any
//     active bank otherwise, then the designated cash account)
//
// Each tier runs only if the prior one yielded nothing. Failure of every
// tier is a ResolutionError and fatal for the mutation.
func (r *AccountResolver) ResolveBankAccount(tx *gorm.DB, mutationId int, ledgerId int, kind models.PaymentKind, description string) (int, error) {
	if ledgerId == 0 {
		r.dlog.Logf("mutation %d: no ledger id, using direction defaults", mutationId)
		return r.defaultBankAccount(tx, mutationId, kind)
	}

	cacheKey := fmt.Sprintf("%d:%s", ledgerId, kind)
	if accountId, ok := r.bankCache[cacheKey]; ok {
		return accountId, nil
	}

	mapping, err := models.GetLedgerMapping(tx, r.business.ID, ledgerId)
	if err != nil {
		return 0, err
	}

	if mapping != nil && mapping.AccountId != 0 {
		account, err := models.GetAccount(tx, mapping.AccountId)
		if err != nil && err != gorm.ErrRecordNotFound {
			return 0, err
		}
		if account != nil && account.IsBankOrCash() {
			r.dlog.Logf("mutation %d: ledger %d (%s) mapped to account %d", mutationId, ledgerId, mapping.LedgerName, account.ID)
			r.bankCache[cacheKey] = account.ID
			return account.ID, nil
		}
		if account != nil {
			r.dlog.Logf("mutation %d: ledger %d maps to %s account, not Bank/Cash", mutationId, ledgerId, account.DetailType)
		}
	}

	if mapping != nil && mapping.LedgerCode != "" {
		cfg, err := models.GetPaymentMethodConfig(tx, r.business.ID, mapping.LedgerCode)
		if err != nil {
			return 0, err
		}
		if cfg != nil && cfg.AccountId != 0 {
			r.dlog.Logf("mutation %d: bank account %d via payment method config (ledger code %s)", mutationId, cfg.AccountId, mapping.LedgerCode)
			r.bankCache[cacheKey] = cfg.AccountId
			return cfg.AccountId, nil
		}
	}

	if description != "" {
		account, err := models.MatchAccountPattern(tx, r.business.ID, description)
		if err != nil {
			return 0, err
		}
		if account != nil {
			r.dlog.Logf("mutation %d: bank account %d via description pattern", mutationId, account.ID)
			r.bankCache[cacheKey] = account.ID
			return account.ID, nil
		}
	}

	accountId, err := r.defaultBankAccount(tx, mutationId, kind)
	if err != nil {
		return 0, err
	}
	r.bankCache[cacheKey] = accountId
	return accountId, nil
}

func (r *AccountResolver) defaultBankAccount(tx *gorm.DB, mutationId int, kind models.PaymentKind) (int, error) {
	if kind == models.PaymentKindReceive && r.business.PrimaryBankAccountId != 0 {
		account, err := models.GetAccount(tx, r.business.PrimaryBankAccountId)
		if err != nil && err != gorm.ErrRecordNotFound {
			return 0, err
		}
		if account != nil && account.IsActive != nil && *account.IsActive {
			r.dlog.Logf("mutation %d: using primary bank account %d", mutationId, account.ID)
			return account.ID, nil
		}
	}

	account, err := models.FindActiveBankAccount(tx, r.business.ID)
	if err != nil {
		return 0, err
	}
	if account != nil {
		r.dlog.Logf("mutation %d: using default bank account %d", mutationId, account.ID)
		return account.ID, nil
	}

	if r.business.DefaultCashAccountId != 0 {
		r.dlog.Logf("mutation %d: falling back to cash account %d", mutationId, r.business.DefaultCashAccountId)
		return r.business.DefaultCashAccountId, nil
	}

	config.LogError(r.logger, "accounts.go", "defaultBankAccount", "NoAccount", mutationId,
		&ResolutionError{MutationID: mutationId, What: "bank account", Reason: "no default available"})
	return 0, &ResolutionError{MutationID: mutationId, What: "bank account", Reason: "no default available"}
}

// ResolvePartyAccount finds the receivable/payable side of the payment. A
// matched invoice that was posted against its own receivable/payable account
// wins outright — the payment must land where the invoice did. After that:
// the first line row's ledger mapping, then the company-wide default, then
// any active account of the right detail type.
func (r *AccountResolver) ResolvePartyAccount(tx *gorm.DB, mutationId int, kind models.PaymentKind, invoices []models.MatchedInvoice, rows []models.MutationRow) (int, error) {
	for _, inv := range invoices {
		if inv.PartyAccountId != 0 {
			r.dlog.Logf("mutation %d: party account %d taken from invoice %s", mutationId, inv.PartyAccountId, inv.InvoiceNumber)
			return inv.PartyAccountId, nil
		}
	}

	if len(rows) > 0 && rows[0].LedgerId != 0 {
		mapping, err := models.GetLedgerMapping(tx, r.business.ID, rows[0].LedgerId)
		if err != nil {
			return 0, err
		}
		if mapping != nil && mapping.AccountId != 0 {
			r.dlog.Logf("mutation %d: party account %d via row ledger %d", mutationId, mapping.AccountId, rows[0].LedgerId)
			return mapping.AccountId, nil
		}
		r.dlog.Logf("mutation %d: no mapping for row ledger %d", mutationId, rows[0].LedgerId)
	}

	detailType := models.AccountDetailTypeAccountsReceivable
	defaultId := r.business.DefaultReceivableAccountId
	if kind == models.PaymentKindPay {
		detailType = models.AccountDetailTypeAccountsPayable
		defaultId = r.business.DefaultPayableAccountId
	}

	if defaultId != 0 {
		r.dlog.Logf("mutation %d: using company default %s account %d", mutationId, detailType, defaultId)
		return defaultId, nil
	}

	account, err := models.FindAccountByDetailType(tx, r.business.ID, detailType)
	if err != nil {
		return 0, err
	}
	if account != nil {
		r.dlog.Logf("mutation %d: using first active %s account %d", mutationId, detailType, account.ID)
		return account.ID, nil
	}

	resErr := &ResolutionError{MutationID: mutationId, What: "party account", Reason: "no " + string(detailType) + " account configured"}
	config.LogError(r.logger, "accounts.go", "ResolvePartyAccount", "NoAccount", mutationId, resErr)
	return 0, resErr
}
