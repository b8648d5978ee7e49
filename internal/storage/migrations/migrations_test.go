package migrations

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x Int32) ENGINE = Memory;

-- second
CREATE TABLE b (y String)
ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") || !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected statements %q", stmts)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings(`SELECT 'a''b'; SELECT 1;`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateNoSemicolonInStrings(`SELECT 'a;b'`); err == nil {
		t.Error("expected error for semicolon inside string literal")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/backtests")
	if err != nil || db != "backtests" {
		t.Errorf("got %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		dir  string
		want []string
	}{
		{"postgres", []string{"001_backtest_trades", "002_performance_reports"}},
		{"clickhouse", []string{"001_equity_curves", "002_daily_bars"}},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			migs, err := load(tt.dir)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(migs) != len(tt.want) {
				t.Fatalf("expected %d migrations, got %d", len(tt.want), len(migs))
			}
			for i, m := range migs {
				if m.Version != tt.want[i] {
					t.Errorf("migration %d: expected %s, got %s", i, tt.want[i], m.Version)
				}
				if err := validateNoSemicolonInStrings(m.SQL); err != nil {
					t.Errorf("%s: %v", m.Version, err)
				}
				if len(splitStatements(m.SQL)) == 0 {
					t.Errorf("%s: no statements", m.Version)
				}
			}
		})
	}
}
