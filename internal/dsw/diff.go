package dsw

import (
	"bytes"
	"compress/gzip"
	"encoding/json"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

// snapshot is the subset of Order fields DSW compares flush-to-flush to
// build the dirty-column set (spec §4.5 "change diff").
type snapshot struct {
	State      domain.State
	FilledQty  string
	FilledAvg  string
	BrokerID   string
	Error      string
	RetryCount int
}

func snapshotOf(o *domain.Order) snapshot {
	return snapshot{
		State:      o.State,
		FilledQty:  o.FilledQty.String(),
		FilledAvg:  o.FilledAvg.String(),
		BrokerID:   o.BrokerID,
		Error:      o.Error,
		RetryCount: o.RetryCount,
	}
}

// dirtyColumns returns the gorm column names that changed between old and
// next, so the flush can Select() only those columns instead of rewriting
// the whole row.
func dirtyColumns(old snapshot, o *domain.Order) []string {
	next := snapshotOf(o)
	var cols []string
	if old.State != next.State {
		cols = append(cols, "state")
	}
	if old.FilledQty != next.FilledQty {
		cols = append(cols, "filled_qty")
	}
	if old.FilledAvg != next.FilledAvg {
		cols = append(cols, "filled_avg")
	}
	if old.BrokerID != next.BrokerID {
		cols = append(cols, "broker_id")
	}
	if old.Error != next.Error {
		cols = append(cols, "error")
	}
	if old.RetryCount != next.RetryCount {
		cols = append(cols, "retry_count")
	}
	cols = append(cols, "updated_at")
	return cols
}

// encodeMetadata JSON-encodes Metadata, gzip-compressing it when the
// encoded size exceeds threshold bytes (spec §4.5).
func encodeMetadata(meta map[string]any, threshold int) (data []byte, compressed bool, err error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, false, err
	}
	if len(raw) <= threshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, false, err
	}
	if err := gz.Close(); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}
