package transfers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

const codeHashLen = 10

// DeriveCode builds the request code for a transfer, e.g. DEP-20250101-3F9A0C11B2.
// day should already be in the engine timezone; nonce separates repeated requests
// for the same origin, destination and day.
func DeriveCode(kind enums.TransferKind, origin, destination string, day time.Time, nonce string) string {
	stamp := day.Format("20060102")
	sum := sha256.Sum256([]byte(strings.Join([]string{origin, destination, stamp, nonce}, "|")))
	return fmt.Sprintf("%s-%s-%s", kind.CodePrefix(), stamp, strings.ToUpper(hex.EncodeToString(sum[:])[:codeHashLen]))
}
