package services

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kobopay/backend/internal/models"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// SettlementService exports completed withdrawals as ISO 20022 pacs.008
// messages for the downstream settlement system.
type SettlementService struct {
	db *sql.DB
}

func NewSettlementService(db *sql.DB) *SettlementService {
	return &SettlementService{db: db}
}

// ExportWithdrawal builds and dispatches the pacs.008 message for one
// completed withdrawal. Failures are logged, not surfaced: settlement
// export never blocks the payout path.
func (ss *SettlementService) ExportWithdrawal(ctx context.Context, txn *models.Transaction) {
	if txn.Type != models.TxnWithdrawal || txn.Metadata.Withdrawal == nil {
		return
	}

	doc, err := ss.createPacs008(txn)
	if err != nil {
		log.Printf("[SETTLEMENT] Failed to build pacs.008 for %s: %v", txn.Reference, err)
		return
	}

	if err := ss.sendToSettlement(doc); err != nil {
		log.Printf("[SETTLEMENT] Failed to dispatch %s: %v", txn.Reference, err)
		return
	}

	log.Printf("[SETTLEMENT] Withdrawal %s exported for settlement", txn.Reference)
}

func (ss *SettlementService) sendToSettlement(doc any) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: deliver over the NIBSS settlement channel once credentials land
	log.Printf("[SETTLEMENT] pacs.008 message:\n%s", string(xmlData))
	return nil
}

func (ss *SettlementService) createPacs008(txn *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	meta := txn.Metadata.Withdrawal
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := txn.Amount.InexactFloat64()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("NGN"),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(txn.Reference)}[0],
					EndToEndId: common.Max35Text(txn.Reference),
					TxId:       &[]common.Max35Text{common.Max35Text(txn.Reference)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("NGN"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("KOBOPAY")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(fmt.Sprintf("USER-%d", txn.UserID))}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(meta.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(meta.AccountName)}[0],
				},
			},
		},
	}

	return doc, nil
}
