package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	sql := `create table a(id text);
insert into a values ('x;y');
create index idx on a(id);`

	stmts := splitStatements(sql)
	if len(stmts) != 3 {
		t.Fatalf("want 3 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "\ninsert into a values ('x;y');" {
		t.Fatalf("semicolon inside string literal must not split: %q", stmts[1])
	}
}

func TestCollectSQLOrdersLexically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_later.up.sql", "0001_init.up.sql", "0001_init.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("want 2 up migrations, got %d", len(files))
	}
	if files[0].Base != "0001_init.up.sql" || files[1].Base != "0002_later.up.sql" {
		t.Fatalf("wrong order: %v", files)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), ".sql")
	if err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if files != nil {
		t.Fatalf("want nil, got %v", files)
	}
}
