package services

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atelier-market/backend/internal/money"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// PayoutInstruction is one withdrawal sent to the payment rail.
type PayoutInstruction struct {
	IdempotencyKey string
	UserID         string
	Amount         money.Money
}

type RailConfirmation struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// PayoutRail moves money out of the platform. Implementations must treat
// IdempotencyKey as the deduplication key on their side.
type PayoutRail interface {
	Transfer(ctx context.Context, instr PayoutInstruction) (*RailConfirmation, error)
	Provider() string
}

// Rail status codes (ExternalPaymentTransactionStatus1Code)
const (
	StatusAcceptedSettlementCompleted = "ACSC"
	StatusAcceptedCustomerProfile     = "ACCP"
	StatusRejected                    = "RJCT"
)

const IdempotencyHeader = "Idempotency-Key"

// ISO20022Rail sends pacs.008 credit transfers to a clearing endpoint.
type ISO20022Rail struct {
	client    *http.Client
	url       string
	debtorBIC string
	provider  string
	timeout   time.Duration
}

func NewISO20022Rail(client *http.Client, url, debtorBIC, provider string, timeout time.Duration) *ISO20022Rail {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ISO20022Rail{
		client:    client,
		url:       url,
		debtorBIC: debtorBIC,
		provider:  provider,
		timeout:   timeout,
	}
}

func (r *ISO20022Rail) Provider() string { return r.provider }

// Transfer posts the pacs.008 document and waits at most the configured
// timeout for a confirmation.
func (r *ISO20022Rail) Transfer(ctx context.Context, instr PayoutInstruction) (*RailConfirmation, error) {
	doc, err := r.CreatePacs008(instr)
	if err != nil {
		return nil, err
	}
	body, err := ConvertToXML(doc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExternalGateway, err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(IdempotencyHeader, instr.IdempotencyKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExternalGateway, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: rail returned %d", ErrExternalGateway, resp.StatusCode)
	}

	var conf RailConfirmation
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExternalGateway, err)
	}
	switch conf.Status {
	case StatusAcceptedSettlementCompleted, StatusAcceptedCustomerProfile:
		if conf.Reference == "" {
			return nil, fmt.Errorf("%w: confirmation without reference", ErrExternalGateway)
		}
		return &conf, nil
	default:
		return nil, fmt.Errorf("%w: transfer status %q", ErrExternalGateway, conf.Status)
	}
}

func max35(s string) *common.Max35Text {
	v := common.Max35Text(truncate(s, 35))
	return &v
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// CreatePacs008 builds the FIToFICustomerCreditTransfer for a payout. The
// end-to-end id carries the idempotency key so the rail can deduplicate.
func (r *ISO20022Rail) CreatePacs008(instr PayoutInstruction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if !instr.Amount.IsPositive() {
		return nil, invalid("amount", "must be positive")
	}
	msgID := uuid.New().String()
	now := time.Now().UTC()
	// pacs_v08 models amounts as float64
	amount := instr.Amount.Amount().InexactFloat64()
	ccy := common.ActiveCurrencyCode(instr.Amount.Currency())

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   ccy,
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    max35(msgID),
					EndToEndId: common.Max35Text(truncate(instr.IdempotencyKey, 35)),
					TxId:       max35(instr.IdempotencyKey),
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   ccy,
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(r.debtorBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("Atelier Marketplace")}[0],
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(instr.UserID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a status report for a payout, used by rail
// simulators and reconciliation tooling.
func CreatePacs002(idempotencyKey, reference, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	now := time.Now().UTC()
	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(now),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlEndToEndId: max35(idempotencyKey),
				OrgnlTxId:       max35(reference),
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
}

// ConvertToXML renders an ISO 20022 document with the XML header.
func ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
