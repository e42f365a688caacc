package entry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

type PaymentMode string

const (
	PayOnline PaymentMode = "online"
	PayCash   PaymentMode = "cash"
)

type Plan struct {
	Code     string
	Name     string
	Amount   int
	Duration int // minutes
}

var plans = map[string]Plan{
	"premium_50":  {Code: "premium_50", Name: "Premium", Amount: 50, Duration: 15},
	"standard_40": {Code: "standard_40", Name: "Standard", Amount: 40, Duration: 15},
}

var ErrUnknownPlan = errors.New("entry: unknown plan selection")

func PlanByCode(code string) (Plan, error) {
	p, ok := plans[code]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

// Transaction is one payment/entry record. Immutable after creation; only its
// ledger status changes afterwards.
type Transaction struct {
	ID          string
	Name        string
	Phone       string
	Plan        Plan
	PaymentMode PaymentMode
	CreatedAt   time.Time
}

// NormalizePhone strips separators and prefixes the default country code
// for bare 10-digit numbers.
func NormalizePhone(phone string) string {
	r := strings.NewReplacer(" ", "", "-", "", "+", "")
	phone = r.Replace(strings.TrimSpace(phone))
	if len(phone) == 10 {
		phone = "91" + phone
	}
	return phone
}

// NewCashTransactionID synthesizes an id for cash payments, which arrive
// without one: CASH-YYYYMMDD-HHMMSS-XXX.
func NewCashTransactionID(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		n = big.NewInt(0)
	}
	return fmt.Sprintf("CASH-%s-%03d", now.Format("20060102-150405"), n.Int64()+100)
}
