package service

import (
	"fmt"
	"unicode"

	"pos-ledger/internal/models"
)

// FormatPurchaseID renders <prefix><initial><counter>, e.g. CGE0007.
// The counter is padded to four digits and grows past 9999 unwrapped.
func FormatPurchaseID(channel models.Channel, firstItemName string, counter int64) string {
	return fmt.Sprintf("%s%c%04d", channel.Prefix(), itemInitial(firstItemName), counter)
}

func itemInitial(name string) rune {
	for _, r := range name {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
	}
	return 'X'
}
