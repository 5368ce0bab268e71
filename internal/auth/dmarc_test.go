package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeResolver serves canned TXT records keyed by query name
type fakeResolver struct {
	records map[string][]string
	err     error
	queries []string
}

func (f *fakeResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	f.queries = append(f.queries, name)
	if f.err != nil {
		return nil, f.err
	}
	records, ok := f.records[name]
	if !ok {
		return nil, errors.New("NXDOMAIN")
	}
	return records, nil
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		txt     string
		want    *core.DMARCRecord
		wantErr bool
	}{
		{
			name: "minimal record with defaults",
			txt:  "v=DMARC1; p=reject",
			want: &core.DMARCRecord{
				Version:       "DMARC1",
				Policy:        core.PolicyReject,
				Percentage:    100,
				DKIMAlignment: core.AlignmentRelaxed,
				SPFAlignment:  core.AlignmentRelaxed,
			},
		},
		{
			name: "full record",
			txt:  "v=DMARC1; p=quarantine; sp=none; pct=50; adkim=s; aspf=strict; rua=mailto:agg@example.com,mailto:agg2@example.com",
			want: &core.DMARCRecord{
				Version:          "DMARC1",
				Policy:           core.PolicyQuarantine,
				SubdomainPolicy:  core.PolicyNone,
				Percentage:       50,
				DKIMAlignment:    core.AlignmentStrict,
				SPFAlignment:     core.AlignmentStrict,
				AggregateReports: []string{"mailto:agg@example.com", "mailto:agg2@example.com"},
			},
		},
		{
			name:    "unsupported version",
			txt:     "v=DMARC2; p=reject",
			wantErr: true,
		},
		{
			name:    "missing mandatory policy",
			txt:     "v=DMARC1; pct=100",
			wantErr: true,
		},
		{
			name:    "missing version tag",
			txt:     "p=reject",
			wantErr: true,
		},
		{
			name:    "pct above range",
			txt:     "v=DMARC1; p=none; pct=150",
			wantErr: true,
		},
		{
			name:    "pct not numeric",
			txt:     "v=DMARC1; p=none; pct=half",
			wantErr: true,
		},
		{
			name:    "unknown policy value",
			txt:     "v=DMARC1; p=destroy",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord(tt.txt)
			if tt.wantErr {
				require.Error(t, err)
				var invalid *core.InvalidDMARCRecordError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetRecord(t *testing.T) {
	logger := zap.NewNop()

	t.Run("fetches and parses the _dmarc record", func(t *testing.T) {
		resolver := &fakeResolver{records: map[string][]string{
			"_dmarc.example.com": {"v=DMARC1; p=quarantine"},
		}}
		fetcher := NewRecordFetcher(resolver, logger)

		record, err := fetcher.GetRecord(context.Background(), "Example.COM")
		require.NoError(t, err)
		assert.Equal(t, core.PolicyQuarantine, record.Policy)
		assert.Equal(t, []string{"_dmarc.example.com"}, resolver.queries)
	})

	t.Run("DNS error maps to ErrNoDMARCRecord", func(t *testing.T) {
		resolver := &fakeResolver{err: errors.New("timeout")}
		fetcher := NewRecordFetcher(resolver, logger)

		_, err := fetcher.GetRecord(context.Background(), "example.com")
		assert.ErrorIs(t, err, core.ErrNoDMARCRecord)
	})

	t.Run("TXT records without a DMARC payload map to ErrNoDMARCRecord", func(t *testing.T) {
		resolver := &fakeResolver{records: map[string][]string{
			"_dmarc.example.com": {"google-site-verification=abc123"},
		}}
		fetcher := NewRecordFetcher(resolver, logger)

		_, err := fetcher.GetRecord(context.Background(), "example.com")
		assert.ErrorIs(t, err, core.ErrNoDMARCRecord)
	})

	t.Run("malformed record surfaces the validation error", func(t *testing.T) {
		resolver := &fakeResolver{records: map[string][]string{
			"_dmarc.example.com": {"v=DMARC1; pct=100"},
		}}
		fetcher := NewRecordFetcher(resolver, logger)

		_, err := fetcher.GetRecord(context.Background(), "example.com")
		var invalid *core.InvalidDMARCRecordError
		assert.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Reason, "p=")
	})
}
