package services

import (
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/peerpay/backend/internal/models"
)

// SettlementService renders approved transfers as ISO 20022 pacs.008 credit
// transfer messages for downstream settlement and archival systems.
type SettlementService struct {
	db *sql.DB
}

func NewSettlementService(db *sql.DB) *SettlementService {
	return &SettlementService{db: db}
}

// ExportTransfer exports a transfer as a pacs.008 message
// @Summary Export transfer for settlement
// @Description Render an approved transfer as an ISO 20022 pacs.008 XML message
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param transferId path int true "Transfer ID"
// @Success 200 {object} object{messageType=string,xml=string}
// @Failure 404 {object} ErrorResponse
// @Router /transfers/{transferId}/settlement [get]
func (ss *SettlementService) ExportTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := strconv.Atoi(chi.URLParam(r, "transferId"))
	if err != nil {
		SendErrorResponse(w, "Invalid transfer id", http.StatusBadRequest, nil)
		return
	}

	transfer, fromName, toName, err := ss.fetchTransferParties(transferID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transfer not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[SETTLEMENT] Failed to fetch transfer %d: %v", transferID, err)
			SendErrorResponse(w, "Failed to fetch transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	doc, err := ss.CreatePacs008(transfer, fromName, toName)
	if err != nil {
		log.Printf("[SETTLEMENT] pacs.008 build failed for transfer %d: %v", transferID, err)
		SendErrorResponse(w, "Failed to build settlement message", http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := ss.ConvertToXML(doc)
	if err != nil {
		log.Printf("[SETTLEMENT] XML marshal failed for transfer %d: %v", transferID, err)
		SendErrorResponse(w, "Failed to build settlement message", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message for a transfer
func (ss *SettlementService) CreatePacs008(t *models.Transfer, fromName, toName string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	amount := float64(t.Amount) / 100
	settlementDate := t.CreatedAt
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(t.Reference),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("USD"),
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
					InstrId:    &[]common.Max35Text{common.Max35Text(strconv.Itoa(t.TransferID))}[0],
					EndToEndId: common.Max35Text(t.Reference),
					TxId:       &[]common.Max35Text{common.Max35Text(strconv.Itoa(t.TransferID))}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("USD"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("PEERPAY0")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(fromName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("PEERPAY0")}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(toName)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts an ISO 20022 document to an XML string
func (ss *SettlementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func (ss *SettlementService) fetchTransferParties(transferID int) (*models.Transfer, string, string, error) {
	var t models.Transfer
	var fromName, toName string
	err := ss.db.QueryRow(`
		SELECT t.transfer_id, t.reference, t.type_id, t.status_id, t.account_from, t.account_to,
		       t.amount, t.created_at, uf.username, ut.username
		FROM transfers t
		JOIN accounts af ON t.account_from = af.account_id
		JOIN users uf ON af.user_id = uf.user_id
		JOIN accounts at ON t.account_to = at.account_id
		JOIN users ut ON at.user_id = ut.user_id
		WHERE t.transfer_id = $1`, transferID).
		Scan(&t.TransferID, &t.Reference, &t.TypeID, &t.StatusID, &t.AccountFrom, &t.AccountTo,
			&t.Amount, &t.CreatedAt, &fromName, &toName)
	if err != nil {
		return nil, "", "", err
	}
	return &t, fromName, toName, nil
}
