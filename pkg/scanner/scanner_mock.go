package scanner

import "context"

var _ Scanner = (*ScannerMock)(nil)

type ScannerMock struct {
	Result *Result
	Err    error
}

func (m *ScannerMock) Scan(_ context.Context) (*Result, error) {
	return m.Result, m.Err
}
