package sepa

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/errs"
)

// descriptionPattern is the character set banks accept in unstructured
// remittance info.
var descriptionPattern = regexp.MustCompile(`^[A-Za-z0-9 \-.,:()/?'+]*$`)

// Config identifies the sending account of a credit transfer file.
type Config struct {
	SenderName string
	SenderIBAN string
	SenderBIC  string
	Currency   string
}

// Transfer is one credit transfer to a customer.
type Transfer struct {
	Name        string
	IBAN        string
	Amount      decimal.Decimal
	Description string
}

// document mirrors the pain.001.001.03 structure.
type document struct {
	XMLName          xml.Name         `xml:"Document"`
	Xmlns            string           `xml:"xmlns,attr"`
	CstmrCdtTrfInitn cstmrCdtTrfInitn `xml:"CstmrCdtTrfInitn"`
}

type cstmrCdtTrfInitn struct {
	GrpHdr grpHdr `xml:"GrpHdr"`
	PmtInf pmtInf `xml:"PmtInf"`
}

type grpHdr struct {
	MsgID    string `xml:"MsgId"`
	CreDtTm  string `xml:"CreDtTm"`
	NbOfTxs  int    `xml:"NbOfTxs"`
	CtrlSum  string `xml:"CtrlSum"`
	InitgPty party  `xml:"InitgPty"`
}

type party struct {
	Nm string `xml:"Nm"`
}

type pmtInf struct {
	PmtInfID    string        `xml:"PmtInfId"`
	PmtMtd      string        `xml:"PmtMtd"`
	BtchBookg   bool          `xml:"BtchBookg"`
	NbOfTxs     int           `xml:"NbOfTxs"`
	CtrlSum     string        `xml:"CtrlSum"`
	PmtTpInf    pmtTpInf      `xml:"PmtTpInf"`
	ReqdExctnDt string        `xml:"ReqdExctnDt"`
	Dbtr        party         `xml:"Dbtr"`
	DbtrAcct    acct          `xml:"DbtrAcct"`
	DbtrAgt     agt           `xml:"DbtrAgt"`
	ChrgBr      string        `xml:"ChrgBr"`
	CdtTrfTxInf []cdtTrfTxInf `xml:"CdtTrfTxInf"`
}

type pmtTpInf struct {
	SvcLvl svcLvl `xml:"SvcLvl"`
}

type svcLvl struct {
	Cd string `xml:"Cd"`
}

type acct struct {
	ID acctID `xml:"Id"`
}

type acctID struct {
	IBAN string `xml:"IBAN"`
}

type agt struct {
	FinInstnID finInstnID `xml:"FinInstnId"`
}

type finInstnID struct {
	BIC string `xml:"BIC"`
}

type cdtTrfTxInf struct {
	PmtID    pmtID  `xml:"PmtId"`
	Amt      amt    `xml:"Amt"`
	Cdtr     party  `xml:"Cdtr"`
	CdtrAcct acct   `xml:"CdtrAcct"`
	RmtInf   rmtInf `xml:"RmtInf"`
}

type pmtID struct {
	EndToEndID string `xml:"EndToEndId"`
}

type amt struct {
	InstdAmt instdAmt `xml:"InstdAmt"`
}

type instdAmt struct {
	Ccy   string `xml:"Ccy,attr"`
	Value string `xml:",chardata"`
}

type rmtInf struct {
	Ustrd string `xml:"Ustrd"`
}

// Render produces one pain.001.001.03 file covering the given
// transfers. Every transfer is validated; the first violation aborts
// the whole file.
func Render(cfg Config, transfers []Transfer, executionDate time.Time, msgID string, now time.Time) ([]byte, error) {
	if len(transfers) == 0 {
		return nil, errs.InvalidArgument("no transfers to render")
	}
	if cfg.SenderBIC == "" {
		return nil, errs.InvalidArgument("sender BIC could not be derived for the sender IBAN")
	}
	senderIBAN, err := ParseIBAN(cfg.SenderIBAN)
	if err != nil {
		return nil, errs.InvalidArgument("sender IBAN is not valid")
	}
	today := now.Truncate(24 * time.Hour)
	if executionDate.Before(today) {
		return nil, errs.InvalidArgument("execution date cannot be in the past")
	}

	ctrlSum := decimal.Zero
	txs := make([]cdtTrfTxInf, 0, len(transfers))
	for i, tr := range transfers {
		iban, err := ParseIBAN(tr.IBAN)
		if err != nil {
			return nil, errs.InvalidArgumentf("transfer %d: invalid IBAN", i)
		}
		if tr.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, errs.InvalidArgumentf("transfer %d: amount must be greater than 0", i)
		}
		if !descriptionPattern.MatchString(tr.Description) {
			return nil, errs.InvalidArgumentf("transfer %d: description contains invalid characters", i)
		}
		amount := tr.Amount.Round(2)
		ctrlSum = ctrlSum.Add(amount)
		txs = append(txs, cdtTrfTxInf{
			PmtID:    pmtID{EndToEndID: fmt.Sprintf("%s-%d", msgID, i+1)},
			Amt:      amt{InstdAmt: instdAmt{Ccy: cfg.Currency, Value: amount.StringFixed(2)}},
			Cdtr:     party{Nm: tr.Name},
			CdtrAcct: acct{ID: acctID{IBAN: iban.Compact()}},
			RmtInf:   rmtInf{Ustrd: tr.Description},
		})
	}

	doc := document{
		Xmlns: "urn:iso:std:iso:20022:tech:xsd:pain.001.001.03",
		CstmrCdtTrfInitn: cstmrCdtTrfInitn{
			GrpHdr: grpHdr{
				MsgID:    msgID,
				CreDtTm:  now.Format("2006-01-02T15:04:05"),
				NbOfTxs:  len(txs),
				CtrlSum:  ctrlSum.StringFixed(2),
				InitgPty: party{Nm: cfg.SenderName},
			},
			PmtInf: pmtInf{
				PmtInfID:    msgID,
				PmtMtd:      "TRF",
				BtchBookg:   len(txs) > 1,
				NbOfTxs:     len(txs),
				CtrlSum:     ctrlSum.StringFixed(2),
				PmtTpInf:    pmtTpInf{SvcLvl: svcLvl{Cd: "SEPA"}},
				ReqdExctnDt: executionDate.Format("2006-01-02"),
				Dbtr:        party{Nm: cfg.SenderName},
				DbtrAcct:    acct{ID: acctID{IBAN: senderIBAN.Compact()}},
				DbtrAgt:     agt{FinInstnID: finInstnID{BIC: cfg.SenderBIC}},
				ChrgBr:      "SLEV",
				CdtTrfTxInf: txs,
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errs.Internal("rendering sepa xml", err)
	}
	return append([]byte(xml.Header), body...), nil
}
