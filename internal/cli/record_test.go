package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Blaqmann/ehr-system/offline"
)

func TestTypeFlagHelpListsEveryRecordType(t *testing.T) {
	for _, cmd := range []struct {
		name string
		flag string
	}{
		{"add", newRecordAddCommand().Flags().Lookup("type").Usage},
		{"list", newRecordListCommand().Flags().Lookup("type").Usage},
	} {
		for _, rt := range offline.RecordTypes() {
			require.Contains(t, cmd.flag, rt.String(), "command %s", cmd.name)
		}
	}
}
