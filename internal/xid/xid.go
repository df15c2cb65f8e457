package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const receiptAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// Receipt builds a receipt number of the form RCP-<unix millis>-<9 base36 chars>.
// Uniqueness is enforced by the store, not here.
func Receipt(at time.Time) string {
	var suffix strings.Builder
	max := big.NewInt(int64(len(receiptAlphabet)))
	for i := 0; i < 9; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			suffix.WriteString(strconv.FormatInt(at.UnixNano()%36, 36))
			continue
		}
		suffix.WriteByte(receiptAlphabet[n.Int64()])
	}
	return strings.ToUpper(fmt.Sprintf("RCP-%d-%s", at.UnixMilli(), suffix.String()))
}
