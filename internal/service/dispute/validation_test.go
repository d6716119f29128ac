package dispute

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seyi-adel/trustvault/internal/domain"
)

func int64p(v int64) *int64 { return &v }

func TestSplitAmounts(t *testing.T) {
	tests := []struct {
		name       string
		resolution domain.DisputeResolution
		buyer      *int64
		seller     *int64
		total      int64
		wantBuyer  int64
		wantSeller int64
		wantErr    error
	}{
		{
			name:       "release to seller ignores amounts",
			resolution: domain.ResolutionReleaseToSeller,
			buyer:      int64p(999),
			seller:     int64p(1),
			total:      10_000,
			wantBuyer:  0,
			wantSeller: 10_000,
		},
		{
			name:       "refund to buyer ignores amounts",
			resolution: domain.ResolutionRefundToBuyer,
			total:      10_000,
			wantBuyer:  10_000,
			wantSeller: 0,
		},
		{
			name:       "valid split",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(4_000),
			seller:     int64p(6_000),
			total:      10_000,
			wantBuyer:  4_000,
			wantSeller: 6_000,
		},
		{
			name:       "split with zero buyer share",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(0),
			seller:     int64p(10_000),
			total:      10_000,
			wantBuyer:  0,
			wantSeller: 10_000,
		},
		{
			name:       "split missing buyer amount",
			resolution: domain.ResolutionSplit,
			seller:     int64p(10_000),
			total:      10_000,
			wantErr:    domain.ErrValidation,
		},
		{
			name:       "split missing seller amount",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(10_000),
			total:      10_000,
			wantErr:    domain.ErrValidation,
		},
		{
			name:       "split negative amount",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(-1),
			seller:     int64p(10_001),
			total:      10_000,
			wantErr:    domain.ErrValidation,
		},
		{
			name:       "split sum below total",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(4_000),
			seller:     int64p(5_000),
			total:      10_000,
			wantErr:    domain.ErrSplitSum,
		},
		{
			name:       "split sum above total",
			resolution: domain.ResolutionSplit,
			buyer:      int64p(4_000),
			seller:     int64p(7_000),
			total:      10_000,
			wantErr:    domain.ErrSplitSum,
		},
		{
			name:       "unknown resolution",
			resolution: domain.DisputeResolution("escalate"),
			total:      10_000,
			wantErr:    domain.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buyer, seller, err := splitAmounts(tc.resolution, tc.buyer, tc.seller, tc.total)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantBuyer, buyer)
			require.Equal(t, tc.wantSeller, seller)
		})
	}
}
