package migrate

import (
	"io/fs"
	"path"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

var createTableRe = regexp.MustCompile(`CREATE TABLE IF NOT EXISTS ([a-z_]+) \(`)

func readMigrations(t *testing.T) string {
	t.Helper()
	src := Embedded()
	files, err := list(src)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var b strings.Builder
	for _, f := range files {
		raw, err := fs.ReadFile(src.FS, path.Join(src.Dir, f.file))
		require.NoError(t, err)
		b.Write(raw)
		b.WriteString("\n")
	}
	return b.String()
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, Validate(Embedded()))
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embedded, err := list(Embedded())
	require.NoError(t, err)
	disk, err := list(Disk("migrations"))
	require.NoError(t, err)
	assert.Equal(t, disk, embedded)
}

func TestMigrationsCreateEveryModelTable(t *testing.T) {
	sql := readMigrations(t)
	created := map[string]bool{}
	for _, m := range createTableRe.FindAllStringSubmatch(sql, -1) {
		created[m[1]] = true
	}

	cache := &sync.Map{}
	for _, model := range models.All() {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		assert.True(t, created[s.Table], "no migration creates table %s", s.Table)
	}
}

func TestMigrationsDeclareUniqueIndexes(t *testing.T) {
	sql := readMigrations(t)
	for _, idx := range []string{
		"ux_group_members",
		"ux_activity_members",
		"ux_accounts_kind_owner",
		"ux_rotation_order",
		"ux_loan_management",
		"ux_dividend_pools",
	} {
		assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS "+idx, idx)
	}
}

func TestMigrationsCoverTransferKinds(t *testing.T) {
	sql := readMigrations(t)
	for _, kind := range []string{
		"deposit", "withdrawal", "registration_fee", "transfer", "loan_disbursement",
		"loan_repayment", "contribution", "fine_payment", "rotation_disbursement", "dividend_payout",
	} {
		assert.Contains(t, sql, "'"+kind+"'")
	}
}

func TestMigrationsCoverDLQReasons(t *testing.T) {
	sql := readMigrations(t)
	for _, reason := range []enums.OutboxDLQErrorReason{
		enums.OutboxDLQReasonMaxAttempts,
		enums.OutboxDLQReasonNonRetryable,
		enums.OutboxDLQReasonUnroutable,
	} {
		assert.Contains(t, sql, "'"+string(reason)+"'")
	}
}
