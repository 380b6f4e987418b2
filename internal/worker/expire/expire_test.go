package expire

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

// mockMetrics はMetricsインターフェースのモック実装。
type mockMetrics struct {
	mu      sync.Mutex
	expired []int
}

func (m *mockMetrics) RecordSessionsExpired(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = append(m.expired, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewExpireJob_DefaultTTL(t *testing.T) {
	var buf bytes.Buffer
	job := NewExpireJob(&mockExecutor{result: &fakeResult{}}, &mockMetrics{}, newTestLogger(&buf))

	if job.TTL != 15*time.Minute {
		t.Errorf("TTL = %v, want 15m", job.TTL)
	}
}

func TestExpireJob_Run_ExecutesUpdateQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 3}}
	job := NewExpireJob(mock, &mockMetrics{}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !mock.execCalled {
		t.Fatal("ExecContext が呼び出されなかった")
	}

	// pendingのみをexpiredに遷移させるUPDATE文であること
	if !strings.Contains(mock.query, "UPDATE payment_sessions") {
		t.Errorf("クエリに 'UPDATE payment_sessions' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "SET status = 'expired'") {
		t.Errorf("クエリに 'SET status = 'expired'' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "status = 'pending'") {
		t.Errorf("クエリがpendingに限定されていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "created_at") {
		t.Errorf("クエリに 'created_at' 条件が含まれていない: %s", mock.query)
	}
}

func TestExpireJob_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewExpireJob(mock, &mockMetrics{}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if len(mock.args) < 1 {
		t.Fatal("ExecContext に引数が渡されなかった")
	}
	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	if argStr != "900 seconds" {
		t.Errorf("interval引数 = %q, want %q", argStr, "900 seconds")
	}
}

func TestExpireJob_Run_CustomTTL(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewExpireJob(mock, &mockMetrics{}, newTestLogger(&buf))
	job.TTL = 30 * time.Minute

	_ = job.Run(context.Background())

	argStr, _ := mock.args[0].(string)
	if argStr != "1800 seconds" {
		t.Errorf("interval引数 = %q, want %q", argStr, "1800 seconds")
	}
}

func TestExpireJob_Run_RecordsMetric(t *testing.T) {
	var buf bytes.Buffer
	metrics := &mockMetrics{}
	job := NewExpireJob(&mockExecutor{result: &fakeResult{rowsAffected: 7}}, metrics, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if len(metrics.expired) != 1 || metrics.expired[0] != 7 {
		t.Errorf("expired metric = %v, want [7]", metrics.expired)
	}
}

func TestExpireJob_Run_LogsExpiredCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewExpireJob(&mockExecutor{result: &fakeResult{rowsAffected: 42}}, &mockMetrics{}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	var entry map[string]interface{}
	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if count, ok := entry["expired_count"]; ok && count == float64(42) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに expired_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestExpireJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewExpireJob(&mockExecutor{err: sql.ErrConnDone}, &mockMetrics{}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestExpireJob_Run_DBFailure_DoesNotRecordMetric(t *testing.T) {
	var buf bytes.Buffer
	metrics := &mockMetrics{}
	job := NewExpireJob(&mockExecutor{err: sql.ErrConnDone}, metrics, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if len(metrics.expired) != 0 {
		t.Errorf("DBエラー時にメトリクスが記録された: %v", metrics.expired)
	}
}

func TestExpireJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewExpireJob(&mockExecutor{result: &fakeResult{rowsAffected: 0}}, &mockMetrics{}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
}
